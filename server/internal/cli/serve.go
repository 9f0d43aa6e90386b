package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livelist/livelist/server/internal/config"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config string
	Port   int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the livelist server",
		Long: `Run the record store, subscription hub and fixture producer, and serve the
REST API (/api/v1), Prometheus metrics (/metrics) and the live stream
(/ws/stream) on one HTTP port.

The config file is watched; producer.interval and log.level are applied
without a restart.

Example:
  livelist serve --config config.yaml
  livelist serve --port 9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file (defaults are used when empty)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "override server.http_port")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Port != 0 {
		cfg.Server.HTTPPort = opts.Port
	}

	logger, level := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format, opts.Verbose)
	slog.SetDefault(logger)

	slog.Info("livelist starting",
		"config", opts.Config,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
		"producer", cfg.Server.Producer.Enabled,
		"interval", cfg.Server.Producer.Interval,
	)

	srv, err := NewServer(ctx, cfg, level)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build server", err)
	}
	defer srv.Close()

	if opts.Config != "" {
		go func() {
			if err := config.Watch(ctx, opts.Config, srv.Reload); err != nil {
				slog.Error("config: watch failed", "err", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("livelist shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	<-done
	return nil
}
