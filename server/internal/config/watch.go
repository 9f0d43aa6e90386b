package config

import (
	"context"

	"github.com/livelist/livelist/pkg/filewatch"
)

// Watch reloads path whenever it changes and passes each valid Config to
// onChange. Saves that arrive in a burst produce a single reload. A file
// that fails to load or validate is logged and the running config is kept.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.File(ctx, path, filewatch.DefaultDebounce, Load, onChange)
}
