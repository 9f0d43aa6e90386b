package config

import (
	"context"

	"github.com/livelist/livelist/pkg/filewatch"
)

// Watch calls onChange with the re-parsed agent config after each change to
// path, until ctx is cancelled. Invalid edits are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.File(ctx, path, filewatch.DefaultDebounce, Load, onChange)
}
