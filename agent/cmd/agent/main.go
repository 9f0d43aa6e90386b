package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livelist/livelist/agent/internal/config"
	"github.com/livelist/livelist/agent/internal/shipper"
	"github.com/livelist/livelist/pkg/fixture"
	"github.com/livelist/livelist/pkg/producer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("livelist-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_url", cfg.Agent.ServerURL,
		"interval", cfg.Agent.Interval,
		"batch_size", cfg.Agent.BatchSize,
		"id_space", cfg.Agent.IDSpace,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship, err := shipper.New(cfg.Agent)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}
	go ship.Run(ctx)

	seed := cfg.Agent.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := fixture.New(cfg.Agent.BatchSize, cfg.Agent.IDSpace, seed)
	prod := producer.New(ship, gen, cfg.Agent.Interval)
	go prod.Run(ctx)

	// Watch config file for hot-reload of the generation interval.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			prod.SetInterval(updated.Agent.Interval)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("livelist-agent shutting down", "pending_batches", ship.Pending())
}
