package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"

	"github.com/livelist/livelist/pkg/types"
	"github.com/livelist/livelist/server/internal/store"
)

// Callback receives change events for one subscription. A non-nil error is
// logged as a SubscriberError and does not affect other subscribers.
type Callback func(types.ChangeEvent) error

// SubscriberError wraps a failure raised by a subscriber callback.
type SubscriberError struct {
	SubscriptionID string
	Err            error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("hub: subscriber %s: %v", e.SubscriptionID, e.Err)
}

func (e *SubscriberError) Unwrap() error { return e.Err }

// Subscription is the caller-owned handle returned by Subscribe.
type Subscription struct {
	id  string
	cb  Callback
	hub *Hub

	// mu serializes deliveries and is held across the Initial event, so no
	// Updated event can overtake it.
	mu sync.Mutex
	// base is the last snapshot this subscriber has been shown and since
	// is its version.
	base    types.Snapshot
	since   uint64
	removed atomic.Bool
	stop    func() bool
}

// ID returns the opaque subscription handle.
func (s *Subscription) ID() string { return s.id }

// Stats are cumulative delivery counters. Coalesced counts commits folded
// into an earlier queued diff because the queue was full. Dropped counts
// queued events that were never dispatched.
type Stats struct {
	Delivered  uint64
	Suppressed uint64
	Failed     uint64
	Coalesced  uint64
	Dropped    uint64
}

// DefaultQueueLimit is the number of undispatched commits a Hub holds before
// it folds new commits into the newest queued one.
const DefaultQueueLimit = 1024

// entry is a registration; the hub never keeps a subscription alive.
type entry struct {
	id  string
	ref weak.Pointer[Subscription]
}

// item is one queued commit or commit failure. folded is set once later
// commits have been merged into it.
type item struct {
	prev, next types.Snapshot
	err        error
	folded     bool
}

// Hub fans store commits out to subscribers as diffs.
//
// Hub is safe for concurrent use.
type Hub struct {
	store *store.Store

	mu   sync.Mutex
	subs []entry // registration order

	qmu     sync.Mutex
	queue   []item
	limit   int
	stopped bool
	wake    chan struct{}

	delivered  atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
	coalesced  atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a Hub over st and registers it as an observer of st.
func New(st *store.Store) *Hub {
	h := &Hub{
		store: st,
		limit: DefaultQueueLimit,
		wake:  make(chan struct{}, 1),
	}
	st.Observe(h)
	return h
}

// Run delivers queued events until ctx is cancelled. Events queued before
// Run starts are delivered once it does. After Run returns the hub discards
// undelivered and future events.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
			h.drain(ctx)
		}
	}
}

// Subscribe registers cb and delivers Initial(current snapshot) before
// returning. Later events arrive on the Run goroutine.
func (h *Hub) Subscribe(cb Callback) *Subscription {
	return h.subscribe(context.Background(), cb)
}

// SubscribeContext is Subscribe with the subscription ending when ctx does.
func (h *Hub) SubscribeContext(ctx context.Context, cb Callback) *Subscription {
	return h.subscribe(ctx, cb)
}

// Unsubscribe removes sub. It is a no-op for nil handles, handles issued by
// another Hub, and handles already removed. No event is delivered to sub
// once Unsubscribe returns.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.hub != h {
		return
	}
	if sub.stop != nil {
		sub.stop()
	}
	h.remove(sub)
}

// NotifyMutation queues the diff between prev and next. It implements
// store.Observer and is called under the store's write lock.
func (h *Hub) NotifyMutation(prev, next types.Snapshot) {
	h.enqueue(item{prev: prev, next: next})
}

// NotifyError queues an Error event. It implements store.Observer.
func (h *Hub) NotifyError(at types.Snapshot, err error) {
	h.enqueue(item{next: at, err: err})
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	return len(h.live())
}

// Stats returns the cumulative delivery counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Delivered:  h.delivered.Load(),
		Suppressed: h.suppressed.Load(),
		Failed:     h.failed.Load(),
		Coalesced:  h.coalesced.Load(),
		Dropped:    h.dropped.Load(),
	}
}

// --- internal ---------------------------------------------------------------

func (h *Hub) subscribe(ctx context.Context, cb Callback) *Subscription {
	sub := &Subscription{id: uuid.Must(uuid.NewV7()).String(), cb: cb, hub: h}
	sub.mu.Lock()
	defer sub.mu.Unlock()

	h.mu.Lock()
	snap := h.store.Snapshot()
	sub.base, sub.since = snap, snap.Version()
	h.subs = append(h.subs, entry{id: sub.id, ref: weak.Make(sub)})
	h.mu.Unlock()

	if ctx.Done() != nil {
		sub.stop = context.AfterFunc(ctx, func() { h.remove(sub) })
	}

	slog.Debug("hub: subscribed", "subscription", sub.id, "version", snap.Version())
	h.deliver(sub, types.ChangeEvent{Kind: types.EventInitial, Snapshot: snap})
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	if sub.removed.Swap(true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.subs {
		if e.id == sub.id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			slog.Debug("hub: unsubscribed", "subscription", sub.id)
			return
		}
	}
}

// enqueue runs under the store's write lock. Once the queue holds limit
// items, a commit is folded into a trailing commit and a failure is dropped,
// so the queue never grows past limit+1.
func (h *Hub) enqueue(it item) {
	h.qmu.Lock()
	n := len(h.queue)
	switch {
	case h.stopped:
		h.qmu.Unlock()
		h.dropped.Add(1)
		return
	case n >= h.limit && it.err != nil:
		h.qmu.Unlock()
		h.dropped.Add(1)
		slog.Warn("hub: queue full, dropped error event", "err", it.err)
		return
	case n >= h.limit && h.queue[n-1].err == nil:
		h.queue[n-1].next = it.next
		h.queue[n-1].folded = true
		h.coalesced.Add(1)
	default:
		h.queue = append(h.queue, it)
	}
	h.qmu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) pop() (item, bool) {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	if len(h.queue) == 0 {
		return item{}, false
	}
	it := h.queue[0]
	h.queue[0] = item{}
	h.queue = h.queue[1:]
	return it, true
}

func (h *Hub) shutdown() {
	h.qmu.Lock()
	h.stopped = true
	n := len(h.queue)
	h.queue = nil
	h.qmu.Unlock()
	if n > 0 {
		h.dropped.Add(uint64(n))
		slog.Warn("hub: stopped with undelivered events", "events", n)
	}
}

func (h *Hub) drain(ctx context.Context) {
	for ctx.Err() == nil {
		it, ok := h.pop()
		if !ok {
			return
		}
		h.dispatch(it)
	}
}

func (h *Hub) dispatch(it item) {
	var ev types.ChangeEvent
	if it.err != nil {
		ev = types.ChangeEvent{Kind: types.EventError, Err: it.err}
	} else {
		ev = Diff(it.prev, it.next)
		if ev.Empty() && !it.folded {
			h.suppressed.Add(1)
			return
		}
	}

	for _, sub := range h.live() {
		sub.mu.Lock()
		if !sub.removed.Load() {
			h.dispatchTo(sub, it, ev)
		}
		sub.mu.Unlock()
	}
}

// dispatchTo runs with sub.mu held. Updated events already reflected in the
// snapshot sub was last shown are skipped; an error at that version is still
// reported.
func (h *Hub) dispatchTo(sub *Subscription, it item, ev types.ChangeEvent) {
	version := it.next.Version()
	if it.err != nil {
		if version >= sub.since {
			h.deliver(sub, ev.Clone())
		}
		return
	}
	if version <= sub.since {
		return
	}
	if it.prev.Version() < sub.since {
		// A folded commit that starts before this subscriber's Initial.
		ev = Diff(sub.base, it.next)
	}
	sub.base, sub.since = it.next, version
	if ev.Empty() {
		return
	}
	h.deliver(sub, ev.Clone())
}

// live returns the registered subscriptions in order, pruning any whose
// handle has been garbage collected.
func (h *Hub) live() []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Subscription, 0, len(h.subs))
	kept := h.subs[:0]
	for _, e := range h.subs {
		sub := e.ref.Value()
		if sub == nil {
			slog.Debug("hub: pruned collected subscription", "subscription", e.id)
			continue
		}
		kept = append(kept, e)
		out = append(out, sub)
	}
	for i := len(kept); i < len(h.subs); i++ {
		h.subs[i] = entry{}
	}
	h.subs = kept
	return out
}

func (h *Hub) deliver(sub *Subscription, ev types.ChangeEvent) {
	if err := call(sub.cb, ev); err != nil {
		h.failed.Add(1)
		slog.Error("hub: subscriber failed",
			"subscription", sub.id,
			"event", ev.Kind.String(),
			"err", &SubscriberError{SubscriptionID: sub.id, Err: err},
		)
		return
	}
	h.delivered.Add(1)
}

// call invokes cb, converting a panic into an error.
func call(cb Callback, ev types.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ev)
}
