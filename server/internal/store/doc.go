// Package store manages the ordered record table and its optional SQLite
// persistence. It provides a thread-safe, single-writer store whose reads
// return immutable snapshots and whose commits are reported to observers
// as exact (previous, next) snapshot pairs.
package store
