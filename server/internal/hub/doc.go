// Package hub delivers live change events for a store.Store.
//
// New(store) creates a Hub and registers it as the store's observer.
// Hub.Run(ctx) drains the commit queue and delivers events until ctx is
// cancelled; it must be running for Updated and Error events to flow.
//
// Subscribe(cb) delivers Initial(current snapshot) synchronously, then every
// later non-empty diff as Updated, in commit order and in subscription order.
// The hub holds subscriptions through weak pointers: dropping the last
// reference to a *Subscription removes it on the next delivery, just as
// Unsubscribe does.
//
// The commit queue is bounded. When it is full, a new commit is folded into
// the newest queued commit, so subscribers get one combined diff instead of
// several. Once Run has returned, the hub discards events.
//
// A callback that returns an error or panics is logged as a SubscriberError
// and skipped; the remaining subscribers still receive the event.
package hub
