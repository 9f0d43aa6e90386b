package types

import "slices"

// EventKind tags a ChangeEvent.
type EventKind int

const (
	// EventInitial carries the snapshot current at subscription time.
	EventInitial EventKind = iota
	// EventUpdated carries the snapshot after a commit plus its diff.
	EventUpdated
	// EventError reports a store-side failure; Snapshot is unset.
	EventError
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventInitial:
		return "initial"
	case EventUpdated:
		return "updated"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ChangeEvent is delivered to subscribers. Inserted and Modified follow the
// order of Snapshot; Deleted follows the order of the previous snapshot.
type ChangeEvent struct {
	Kind     EventKind
	Snapshot Snapshot
	Inserted []string
	Modified []string
	Deleted  []string
	Err      error
}

// Empty reports whether an Updated event carries no changes.
func (e ChangeEvent) Empty() bool {
	return len(e.Inserted) == 0 && len(e.Modified) == 0 && len(e.Deleted) == 0
}

// Clone returns e with its own copies of the id lists. Snapshot is already
// immutable and is shared.
func (e ChangeEvent) Clone() ChangeEvent {
	e.Inserted = slices.Clone(e.Inserted)
	e.Modified = slices.Clone(e.Modified)
	e.Deleted = slices.Clone(e.Deleted)
	return e
}
