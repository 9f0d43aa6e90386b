package hub

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livelist/livelist/pkg/types"
	"github.com/livelist/livelist/server/internal/store"
)

const waitFor = 2 * time.Second

// --- helpers ----------------------------------------------------------------

func rec(id, name string) types.Record { return types.Record{ID: id, Name: name} }

func recs(rs ...types.Record) []types.Record { return rs }

// startHub returns a store and a running hub over it.
func startHub(t *testing.T, st *store.Store) *Hub {
	t.Helper()
	h := New(st)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// collect subscribes and returns a channel receiving every event.
func collect(t *testing.T, h *Hub) (*Subscription, <-chan types.ChangeEvent) {
	t.Helper()
	ch := make(chan types.ChangeEvent, 64)
	sub := h.Subscribe(func(ev types.ChangeEvent) error {
		ch <- ev
		return nil
	})
	t.Cleanup(func() { h.Unsubscribe(sub) })
	return sub, ch
}

func next(t *testing.T, ch <-chan types.ChangeEvent) types.ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return types.ChangeEvent{}
	}
}

func requireNone(t *testing.T, ch <-chan types.ChangeEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected %s event: %+v", ev.Kind, ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// brokenDisk is a store.Backend whose writes always fail.
type brokenDisk struct{}

func (brokenDisk) Load(context.Context) ([]types.Record, error) { return nil, nil }
func (brokenDisk) Apply(context.Context, store.Mutation) error  { return errors.New("disk full") }
func (brokenDisk) Close() error                                  { return nil }

// --- scenarios --------------------------------------------------------------

func TestScenarioA_InsertIntoEmptyStore(t *testing.T) {
	st := store.New()
	h := startHub(t, st)
	_, ch := collect(t, h)

	initial := next(t, ch)
	require.Equal(t, types.EventInitial, initial.Kind)
	require.Equal(t, 0, initial.Snapshot.Len())

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))

	ev := next(t, ch)
	require.Equal(t, types.EventUpdated, ev.Kind)
	require.Equal(t, []types.Record{rec("1", "a")}, ev.Snapshot.Records())
	require.Equal(t, []string{"1"}, ev.Inserted)
	require.Empty(t, ev.Modified)
	require.Empty(t, ev.Deleted)
	require.Equal(t, []types.Record{rec("1", "a")}, st.Snapshot().Records())
}

func TestScenarioB_ModifyExisting(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	h := startHub(t, st)
	_, ch := collect(t, h)
	next(t, ch) // initial

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "b"))))

	ev := next(t, ch)
	require.Empty(t, ev.Inserted)
	require.Equal(t, []string{"1"}, ev.Modified)
	require.Empty(t, ev.Deleted)
	require.Equal(t, []types.Record{rec("1", "b")}, st.Snapshot().Records())
}

func TestScenarioC_ReplaceAllDeletes(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"), rec("2", "b"))))
	h := startHub(t, st)
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.ReplaceAll(context.Background(), recs(rec("2", "b"))))

	ev := next(t, ch)
	require.Empty(t, ev.Inserted)
	require.Empty(t, ev.Modified)
	require.Equal(t, []string{"1"}, ev.Deleted)
	require.Equal(t, []types.Record{rec("2", "b")}, st.Snapshot().Records())
	requireNone(t, ch)
}

func TestScenarioD_FailingSubscriberIsolated(t *testing.T) {
	st := store.New()
	h := startHub(t, st)

	failing := h.Subscribe(func(types.ChangeEvent) error { return errors.New("render failed") })
	panicking := h.Subscribe(func(types.ChangeEvent) error { panic("boom") })
	t.Cleanup(func() { h.Unsubscribe(failing); h.Unsubscribe(panicking) })
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))

	ev := next(t, ch)
	require.Equal(t, []string{"1"}, ev.Inserted)
	require.Eventually(t, func() bool { return h.Stats().Failed == 4 }, waitFor, 5*time.Millisecond,
		"two failing subscribers should fail on Initial and Updated")
	require.Equal(t, 3, h.Count())
}

// --- properties -------------------------------------------------------------

func TestNoOpDiffSuppressed(t *testing.T) {
	st := store.New()
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, recs(rec("1", "a"))))
	h := startHub(t, st)
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.ReplaceAll(ctx, nil))
	ev := next(t, ch)
	require.Equal(t, []string{"1"}, ev.Deleted)

	require.NoError(t, st.ReplaceAll(ctx, nil))
	require.NoError(t, st.Upsert(ctx, recs(rec("2", "b"))))

	ev = next(t, ch)
	require.Equal(t, []string{"2"}, ev.Inserted, "second ReplaceAll([]) must not emit an event")
	require.Equal(t, uint64(1), h.Stats().Suppressed)
}

func TestSameValueUpsertSuppressed(t *testing.T) {
	st := store.New()
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, recs(rec("1", "a"))))
	h := startHub(t, st)
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.Upsert(ctx, recs(rec("1", "a"))))
	requireNone(t, ch)
}

func TestInitialBeforeUpdated_UnderConcurrentWrites(t *testing.T) {
	st := store.New()
	h := startHub(t, st)

	writeCtx, stopWrites := context.WithCancel(context.Background())
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for i := 0; writeCtx.Err() == nil; i++ {
			// Names are unique, so every commit yields a non-empty diff.
			st.Upsert(context.Background(), recs(rec(fmt.Sprint(i%5), fmt.Sprint(i)))) //nolint:errcheck
		}
	}()

	type log struct {
		mu     sync.Mutex
		events []types.ChangeEvent
	}
	var subs []*Subscription
	var logs []*log
	for i := 0; i < 20; i++ {
		l := &log{}
		logs = append(logs, l)
		subs = append(subs, h.Subscribe(func(ev types.ChangeEvent) error {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
			return nil
		}))
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() {
		for _, s := range subs {
			h.Unsubscribe(s)
		}
	})

	stopWrites()
	writer.Wait()
	final := st.Snapshot().Version()

	require.Eventually(t, func() bool {
		for _, l := range logs {
			l.mu.Lock()
			last := l.events[len(l.events)-1].Snapshot.Version()
			l.mu.Unlock()
			if last != final {
				return false
			}
		}
		return true
	}, waitFor, 5*time.Millisecond)

	for i, l := range logs {
		l.mu.Lock()
		require.Equal(t, types.EventInitial, l.events[0].Kind, "subscriber %d", i)
		for k := 1; k < len(l.events); k++ {
			require.Equal(t, types.EventUpdated, l.events[k].Kind, "subscriber %d event %d", i, k)
			require.Equal(t, l.events[k-1].Snapshot.Version()+1, l.events[k].Snapshot.Version(),
				"subscriber %d event %d: versions must be contiguous", i, k)
		}
		l.mu.Unlock()
	}
}

func TestDeliveryInRegistrationOrder(t *testing.T) {
	st := store.New()
	h := startHub(t, st)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)
	mk := func(name string) Callback {
		return func(ev types.ChangeEvent) error {
			if ev.Kind != types.EventUpdated {
				return nil
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}
	a, b, c := h.Subscribe(mk("a")), h.Subscribe(mk("b")), h.Subscribe(mk("c"))
	t.Cleanup(func() { h.Unsubscribe(a); h.Unsubscribe(b); h.Unsubscribe(c) })

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("timed out waiting for delivery")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	st := store.New()
	h := startHub(t, st)
	sub, ch := collect(t, h)
	next(t, ch)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)
	require.Equal(t, 0, h.Count())

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	requireNone(t, ch)
}

func TestUnsubscribe_ForeignHandleIsNoOp(t *testing.T) {
	st1 := store.New()
	h1 := startHub(t, st1)
	h2 := startHub(t, store.New())
	sub, ch := collect(t, h1)
	next(t, ch)
	_, _ = collect(t, h2)

	h2.Unsubscribe(sub)
	require.Equal(t, 1, h2.Count())
	require.Equal(t, 1, h1.Count())

	require.NoError(t, st1.Upsert(context.Background(), recs(rec("1", "a"))))
	ev := next(t, ch)
	require.Equal(t, []string{"1"}, ev.Inserted)

	h1.Unsubscribe(sub)
	require.Equal(t, 0, h1.Count())
}

func TestDelivery_ListsAreNotShared(t *testing.T) {
	st := store.New()
	h := startHub(t, st)

	writer := h.Subscribe(func(ev types.ChangeEvent) error {
		if ev.Kind == types.EventUpdated {
			ev.Inserted[0] = "tampered"
		}
		return nil
	})
	t.Cleanup(func() { h.Unsubscribe(writer) })
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	ev := next(t, ch)
	require.Equal(t, []string{"1"}, ev.Inserted)
}

func TestResubscribe_FreshHandle(t *testing.T) {
	h := startHub(t, store.New())
	first, _ := collect(t, h)
	h.Unsubscribe(first)
	second, _ := collect(t, h)
	require.NotEqual(t, first.ID(), second.ID())
	require.Equal(t, 1, h.Count())
}

func TestSubscribeContext_CancelRemoves(t *testing.T) {
	st := store.New()
	h := startHub(t, st)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan types.ChangeEvent, 8)
	sub := h.SubscribeContext(ctx, func(ev types.ChangeEvent) error { ch <- ev; return nil })
	next(t, ch)
	require.Equal(t, 1, h.Count())

	cancel()
	require.Eventually(t, func() bool { return h.Count() == 0 }, waitFor, 5*time.Millisecond)
	h.Unsubscribe(sub) // still a no-op after teardown
}

func TestDroppedHandle_PrunedAfterGC(t *testing.T) {
	h := startHub(t, store.New())
	func() {
		h.Subscribe(func(types.ChangeEvent) error { return nil })
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return h.Count() == 0
	}, waitFor, 10*time.Millisecond)
}

func TestPersistFailure_DeliversErrorEvent(t *testing.T) {
	st, err := store.Open(context.Background(), brokenDisk{})
	require.NoError(t, err)
	h := startHub(t, st)
	_, ch := collect(t, h)
	next(t, ch)

	require.Error(t, st.Upsert(context.Background(), recs(rec("1", "a"))))

	ev := next(t, ch)
	require.Equal(t, types.EventError, ev.Kind)
	require.ErrorContains(t, ev.Err, "disk full")
	require.Equal(t, 0, st.Count())
}

func TestEventsQueuedBeforeRun(t *testing.T) {
	st := store.New()
	h := New(st)
	_, ch := collect(t, h)
	next(t, ch)

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	requireNone(t, ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	ev := next(t, ch)
	require.Equal(t, []string{"1"}, ev.Inserted)
}

func TestQueueFull_FoldsCommits(t *testing.T) {
	st := store.New()
	h := New(st)
	h.limit = 2
	_, ch := collect(t, h)
	next(t, ch)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Upsert(ctx, recs(rec(fmt.Sprint(i), "x"))))
	}
	h.qmu.Lock()
	queued := len(h.queue)
	h.qmu.Unlock()
	require.Equal(t, 2, queued)
	require.Equal(t, uint64(3), h.Stats().Coalesced)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.Run(runCtx)

	require.Equal(t, []string{"0"}, next(t, ch).Inserted)
	require.Equal(t, []string{"1", "2", "3", "4"}, next(t, ch).Inserted)
	requireNone(t, ch)
}

func TestFoldedCommit_SpanningInitial(t *testing.T) {
	st := store.New()
	h := New(st)
	h.limit = 1
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, recs(rec("1", "a"))))
	_, ch := collect(t, h)
	initial := next(t, ch)
	require.Equal(t, []string{"1"}, initial.Snapshot.IDs())

	require.NoError(t, st.Upsert(ctx, recs(rec("2", "b"))))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.Run(runCtx)

	ev := next(t, ch)
	require.Equal(t, []string{"2"}, ev.Inserted)
	require.Empty(t, ev.Modified)
	require.Equal(t, []string{"1", "2"}, ev.Snapshot.IDs())
}

func TestStoppedHub_DropsEvents(t *testing.T) {
	st := store.New()
	h := New(st)
	_, ch := collect(t, h)
	next(t, ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	require.NoError(t, st.Upsert(context.Background(), recs(rec("1", "a"))))
	h.qmu.Lock()
	queued := len(h.queue)
	h.qmu.Unlock()
	require.Zero(t, queued)
	require.Equal(t, uint64(1), h.Stats().Dropped)
	requireNone(t, ch)
}
