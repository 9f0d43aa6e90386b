// Package cli implements the livelist server command line.
//
// NewRootCommand returns the cobra root with three subcommands:
//
//	serve     run the store, hub, producer, REST API, /metrics and /ws/stream
//	snapshot  print the records held in a SQLite database file
//	watch     connect to a server's /ws/stream and render the live list
//
// Global flags: --verbose/-v (debug logging) and --format (text|json).
package cli
