// Package filewatch reloads a file when it changes on disk.
//
// File watches the file's parent directory rather than the file itself, so
// editors that save by writing a temporary file and renaming it over the
// original are seen the same way as in-place writes. Bursts of events are
// collapsed: the file is loaded once the directory has been quiet for the
// debounce interval.
package filewatch
