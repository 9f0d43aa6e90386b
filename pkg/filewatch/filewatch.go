package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period File waits for before loading.
const DefaultDebounce = 100 * time.Millisecond

// File calls load(path) after every change to path and passes each
// successful result to apply. A load error is logged and the previous value
// stays in effect. File blocks until ctx is cancelled; it returns an error
// only when the watch cannot be set up.
func File[T any](ctx context.Context, path string, debounce time.Duration, load func(string) (T, error), apply func(T)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("filewatch: watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("filewatch: watching for changes", "path", target)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			v, err := load(target)
			if err != nil {
				slog.Error("filewatch: reload failed, keeping previous value",
					"path", target, "err", err)
				continue
			}
			slog.Info("filewatch: reloaded", "path", target)
			apply(v)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("filewatch: watcher error", "err", err)
		}
	}
}

// relevant reports whether event may have changed the content of target.
// Removal is ignored; a rename-based save arrives as a Create of target.
func relevant(event fsnotify.Event, target string) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
