// Package producer runs a cancellable periodic task that replaces the whole
// content of a Sink with a fresh batch from a Source on every tick.
//
// The store is a Sink in-process; the agent's shipper is a Sink that forwards
// batches to a remote server. The interval can be changed while Run is
// active (SetInterval), which is how config hot-reload reaches it.
package producer
