package api

import (
	"fmt"

	"github.com/livelist/livelist/server/internal/hub"
	"github.com/livelist/livelist/server/internal/store"
)

// DiagnosticHint is one human-readable insight about the server's state,
// reported by GET /api/v1/health.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional count associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

type healthInput struct {
	records     int
	subscribers int
	store       store.Stats
	hub         hub.Stats
}

// computeDiagnostics derives hints from store and hub counters.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(in healthInput) []DiagnosticHint {
	var crit, warn, info []DiagnosticHint

	if n := in.store.PersistFailures; n > 0 {
		crit = append(crit, DiagnosticHint{
			Key:   "persist_failures",
			Level: "critical",
			Title: "Disk writes failing",
			Detail: fmt.Sprintf(
				"%d mutation batch(es) were aborted because the storage backend rejected the write. "+
					"The in-memory table was left unchanged each time and subscribers received an error event. "+
					"Check free space and permissions on the database file.", n),
			Value: ptr(float64(n)),
		})
	}

	if n := in.hub.Failed; n > 0 {
		warn = append(warn, DiagnosticHint{
			Key:   "subscriber_failures",
			Level: "warning",
			Title: "Subscriber callbacks failing",
			Detail: fmt.Sprintf(
				"%d event deliveries returned an error or panicked. "+
					"Other subscribers were not affected. Look for \"hub: subscriber failed\" in the server log.", n),
			Value: ptr(float64(n)),
		})
	}

	if n := in.store.Rejected; n > 0 {
		info = append(info, DiagnosticHint{
			Key:    "rejected_batches",
			Level:  "info",
			Title:  "Batches rejected",
			Detail: fmt.Sprintf("%d mutation batch(es) failed validation and were not applied.", n),
			Value:  ptr(float64(n)),
		})
	}

	if in.records == 0 {
		info = append(info, DiagnosticHint{
			Key:    "empty_table",
			Level:  "info",
			Title:  "No records",
			Detail: "The table is empty. If a producer is enabled, rows appear after its first tick.",
		})
	}

	if in.subscribers == 0 {
		info = append(info, DiagnosticHint{
			Key:    "no_subscribers",
			Level:  "info",
			Title:  "Nobody watching",
			Detail: "No live subscriptions. Connect to /ws/stream to follow changes.",
		})
	}

	out := make([]DiagnosticHint, 0, len(crit)+len(warn)+len(info))
	out = append(out, crit...)
	out = append(out, warn...)
	return append(out, info...)
}

// statusFromHints is "degraded" when any hint is above info level.
func statusFromHints(hints []DiagnosticHint) string {
	for _, h := range hints {
		if h.Level != "info" {
			return "degraded"
		}
	}
	return "ok"
}

func ptr(v float64) *float64 { return &v }
