// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of list records and the
// change events derived from them, separate from the JSON wire format.
package types
