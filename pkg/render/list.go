package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/livelist/livelist/pkg/types"
)

// Row is one line of the list.
type Row struct {
	types.Record
	Changed bool
}

// List is the ordered row model. It is safe for concurrent use.
type List struct {
	mu      sync.Mutex
	rows    []Row
	version uint64
	ready   bool
	err     error
}

// NewList returns an empty list awaiting its initial event.
func NewList() *List { return &List{} }

// Apply folds one event into the list. It satisfies hub.Callback.
func (l *List) Apply(ev types.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Kind {
	case types.EventInitial:
		l.rows = l.rows[:0]
		for _, r := range ev.Snapshot.Records() {
			l.rows = append(l.rows, Row{Record: r})
		}
		l.version = ev.Snapshot.Version()
		l.ready = true
		l.err = nil
	case types.EventUpdated:
		if l.ready && ev.Snapshot.Version() <= l.version {
			return nil
		}
		l.update(ev)
		l.ready = true
		l.err = nil
	case types.EventError:
		l.err = ev.Err
	default:
		return fmt.Errorf("render: unknown event kind %d", ev.Kind)
	}
	return nil
}

// update rebuilds the row order from the snapshot while keeping row identity
// for ids that were already shown. A row present in both lists counts as
// changed only when the event reports it inserted or modified.
func (l *List) update(ev types.ChangeEvent) {
	touched := make(map[string]bool, len(ev.Inserted)+len(ev.Modified))
	for _, id := range ev.Inserted {
		touched[id] = true
	}
	for _, id := range ev.Modified {
		touched[id] = true
	}

	rows := make([]Row, 0, ev.Snapshot.Len())
	for i := 0; i < ev.Snapshot.Len(); i++ {
		r := ev.Snapshot.At(i)
		rows = append(rows, Row{Record: r, Changed: touched[r.ID]})
	}
	l.rows = rows
	l.version = ev.Snapshot.Version()
}

// Rows returns a copy of the current rows.
func (l *List) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Version is the snapshot version last applied.
func (l *List) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Err is the last error event, cleared by the next successful event.
func (l *List) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Render writes the list as text, one row per line. Changed rows are marked
// with '*'.
func (l *List) Render(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprintf(w, "version %d  (%d rows)\n", l.version, len(l.rows)); err != nil {
		return err
	}
	for _, r := range l.rows {
		mark := " "
		if r.Changed {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %-8s %s\n", mark, r.ID, r.Name); err != nil {
			return err
		}
	}
	if l.err != nil {
		if _, err := fmt.Fprintf(w, "! %v\n", l.err); err != nil {
			return err
		}
	}
	return nil
}
