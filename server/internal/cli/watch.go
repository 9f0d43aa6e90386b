package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/livelist/livelist/pkg/render"
	"github.com/livelist/livelist/server/internal/ws"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	URL    string
	Count  int
	APIKey string
	Header string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render a server's live list in the terminal",
		Long: `Connect to a livelist server's /ws/stream endpoint and redraw the list after
every change. Rows touched by the latest change are marked with '*'.

With --format json every received message is printed as one JSON line
instead.

Example:
  livelist watch --url ws://localhost:8080/ws/stream
  livelist watch --url ws://localhost:8080/ws/stream --count 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "ws://localhost:8080/ws/stream", "stream endpoint")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many events (0 = until interrupted)")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", os.Getenv("LIVELIST_API_KEY"), "API key sent on connect")
	cmd.Flags().StringVar(&opts.Header, "api-key-header", "X-API-Key", "header carrying --api-key")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, opts *WatchOptions) error {
	hdr := http.Header{}
	if opts.APIKey != "" {
		hdr.Set(opts.Header, opts.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, hdr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on interrupt.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	list := render.NewList()
	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: read: %w", err)
		}

		if opts.Format == "json" {
			fmt.Fprintf(out, "%s\n", msg)
			continue
		}

		ev, err := ws.Decode(msg)
		if err != nil {
			slog.Warn("watch: skipping message", "err", err)
			continue
		}
		if err := list.Apply(ev); err != nil {
			slog.Warn("watch: skipping event", "err", err)
			continue
		}
		fmt.Fprintf(out, "-- %s\n", ev.Kind)
		if err := list.Render(out); err != nil {
			return err
		}
	}
	conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
