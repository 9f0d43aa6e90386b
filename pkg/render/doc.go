// Package render keeps the row model a list view draws from a stream of
// change events.
//
// Rows are keyed by id. An Updated event rewrites matching rows in place,
// drops deleted ones and inserts new ones at their snapshot position. Rows
// touched by the latest event are flagged so a view can highlight them.
package render
