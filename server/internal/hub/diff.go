package hub

import "github.com/livelist/livelist/pkg/types"

// Diff computes the Updated event that takes prev to next.
// Inserted and Modified follow next's order; Deleted follows prev's.
func Diff(prev, next types.Snapshot) types.ChangeEvent {
	ev := types.ChangeEvent{Kind: types.EventUpdated, Snapshot: next}
	for i := 0; i < next.Len(); i++ {
		r := next.At(i)
		old, ok := prev.Lookup(r.ID)
		switch {
		case !ok:
			ev.Inserted = append(ev.Inserted, r.ID)
		case old != r:
			ev.Modified = append(ev.Modified, r.ID)
		}
	}
	for i := 0; i < prev.Len(); i++ {
		id := prev.At(i).ID
		if _, ok := next.Lookup(id); !ok {
			ev.Deleted = append(ev.Deleted, id)
		}
	}
	return ev
}
