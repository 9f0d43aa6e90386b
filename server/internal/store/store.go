package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/livelist/livelist/pkg/types"
)

// Observer is told about every commit. Both methods run with the store's
// write lock held, in commit order, and must only enqueue. NotifyError
// receives the unchanged snapshot the failed commit started from.
type Observer interface {
	NotifyMutation(prev, next types.Snapshot)
	NotifyError(at types.Snapshot, err error)
}

// Mutation is one batch as handed to a Backend. Reset clears the table
// before Records are upserted.
type Mutation struct {
	Reset   bool
	Records []types.Record
}

// Backend persists commits. Apply is called under the write lock before the
// in-memory table changes; an error aborts the commit.
type Backend interface {
	Load(ctx context.Context) ([]types.Record, error)
	Apply(ctx context.Context, m Mutation) error
	Close() error
}

// Stats are cumulative counters since the store was created.
type Stats struct {
	Commits         uint64
	Rejected        uint64
	PersistFailures uint64
}

// Store is a thread-safe ordered record table keyed by Record.ID.
// Mutations are serialized; Snapshot never blocks on anything but a writer.
type Store struct {
	mu        sync.RWMutex
	snap      types.Snapshot
	backend   Backend
	observers []Observer

	commits         atomic.Uint64
	rejected        atomic.Uint64
	persistFailures atomic.Uint64
}

// New creates an empty, memory-only Store.
func New() *Store {
	return &Store{snap: types.NewSnapshot(0, nil)}
}

// Open creates a Store backed by b, seeded with whatever b already holds.
// The Store takes ownership of b and closes it on Close.
func Open(ctx context.Context, b Backend) (*Store, error) {
	recs, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	s := New()
	s.backend = b
	s.snap = merge(s.snap, false, recs, 0)
	slog.Info("store: loaded", "records", s.snap.Len())
	return s, nil
}

// Close releases the backend, if any.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Observe registers o for all future commits.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Upsert inserts records with new ids at the end and replaces records whose
// id already exists, keeping their position. A record with an empty id, or
// an id that is not valid NFC-normalized UTF-8, rejects the whole batch with
// a *ValidationError.
func (s *Store) Upsert(ctx context.Context, records []types.Record) error {
	_, err := s.Commit(ctx, Mutation{Records: records})
	return err
}

// DeleteAll removes every record. It fails only when a backend write fails.
func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.Commit(ctx, Mutation{Reset: true})
	return err
}

// ReplaceAll is DeleteAll followed by Upsert, committed as one batch.
func (s *Store) ReplaceAll(ctx context.Context, records []types.Record) error {
	_, err := s.Commit(ctx, Mutation{Reset: true, Records: records})
	return err
}

func (m Mutation) op() string {
	switch {
	case m.Reset && len(m.Records) > 0:
		return "replace_all"
	case m.Reset:
		return "delete_all"
	default:
		return "upsert"
	}
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (types.Record, bool) {
	return s.Snapshot().Lookup(id)
}

// Count returns the number of records.
func (s *Store) Count() int {
	return s.Snapshot().Len()
}

// Stats returns the cumulative counters.
func (s *Store) Stats() Stats {
	return Stats{
		Commits:         s.commits.Load(),
		Rejected:        s.rejected.Load(),
		PersistFailures: s.persistFailures.Load(),
	}
}

// Commit applies m as one batch and returns the snapshot it produced.
// Upsert, DeleteAll and ReplaceAll are Commit with the result dropped.
func (s *Store) Commit(ctx context.Context, m Mutation) (types.Snapshot, error) {
	op := m.op()
	if err := validate(m.Records); err != nil {
		s.rejected.Add(1)
		return types.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap
	next := merge(prev, m.Reset, m.Records, prev.Version()+1)

	if s.backend != nil {
		if err := s.backend.Apply(ctx, m); err != nil {
			s.persistFailures.Add(1)
			err = fmt.Errorf("store: persist %s: %w", op, err)
			slog.Error("store: commit aborted", "op", op, "err", err)
			for _, o := range s.observers {
				o.NotifyError(prev, err)
			}
			return types.Snapshot{}, err
		}
	}

	s.snap = next
	s.commits.Add(1)
	for _, o := range s.observers {
		o.NotifyMutation(prev, next)
	}
	slog.Debug("store: committed", "op", op, "version", next.Version(), "records", next.Len())
	return next, nil
}

// validate checks every id in a batch without touching the table. Ids are
// never rewritten, so two spellings of the same text would be two keys; ids
// outside NFC are rejected instead.
func validate(in []types.Record) error {
	for i, r := range in {
		switch {
		case r.ID == "":
			return &ValidationError{Index: i, ID: r.ID, Reason: "id is required"}
		case !utf8.ValidString(r.ID):
			return &ValidationError{Index: i, ID: r.ID, Reason: "id is not valid UTF-8"}
		case !norm.NFC.IsNormalString(r.ID):
			return &ValidationError{Index: i, ID: r.ID, Reason: "id is not in Unicode NFC form"}
		}
	}
	return nil
}

// merge applies recs on top of prev (or on an empty table when reset).
// A duplicate id within recs keeps the position of its first occurrence.
func merge(prev types.Snapshot, reset bool, recs []types.Record, version uint64) types.Snapshot {
	var out []types.Record
	if !reset {
		out = prev.Records()
	}
	pos := make(map[string]int, len(out)+len(recs))
	for i, r := range out {
		pos[r.ID] = i
	}
	for _, r := range recs {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return types.NewSnapshot(version, out)
}
