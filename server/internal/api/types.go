package api

import "github.com/livelist/livelist/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status          string           `json:"status"` // "ok" | "degraded"
	RecordCount     int              `json:"record_count"`
	SubscriberCount int              `json:"subscriber_count"`
	Version         uint64           `json:"version"`
	Diagnostics     []DiagnosticHint `json:"diagnostics"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Version     uint64         `json:"version"`
	Records     []types.Record `json:"records"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// MutationResponse is returned by successful POST, PUT and DELETE on
// /api/v1/records.
type MutationResponse struct {
	Version     uint64 `json:"version"`
	RecordCount int    `json:"record_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}
