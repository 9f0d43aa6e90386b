package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/livelist/livelist/pkg/fixture"
	"github.com/livelist/livelist/pkg/producer"
	"github.com/livelist/livelist/server/internal/api"
	"github.com/livelist/livelist/server/internal/auth"
	"github.com/livelist/livelist/server/internal/config"
	"github.com/livelist/livelist/server/internal/hub"
	"github.com/livelist/livelist/server/internal/metrics"
	"github.com/livelist/livelist/server/internal/store"
	"github.com/livelist/livelist/server/internal/ws"
)

// Server is the assembled livelist process: store, hub, optional fixture
// producer and the HTTP surface over them.
type Server struct {
	store    *store.Store
	hub      *hub.Hub
	stream   *ws.Stream
	producer *producer.Producer // nil when disabled
	handler  http.Handler
	level    *slog.LevelVar
}

// NewServer wires every component from cfg. level may be nil.
func NewServer(ctx context.Context, cfg *config.Config, level *slog.LevelVar) (*Server, error) {
	st, err := openStore(ctx, cfg.Server.Storage)
	if err != nil {
		return nil, err
	}

	s := &Server{store: st, level: level}
	s.hub = hub.New(st)
	s.stream = ws.New(s.hub, cfg.Server.Stream.SendBuffer)

	reg := metrics.NewRegistry()
	reg.Register(metrics.StoreCollector(st))
	reg.Register(metrics.HubCollector(s.hub))

	if p := cfg.Server.Producer; p.Enabled {
		seed := p.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.producer = producer.New(st, fixture.New(p.BatchSize, p.IDSpace, seed), p.Interval)
		reg.Register(metrics.ProducerCollector(s.producer))
	}

	guard := auth.APIKey(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(st, s.hub, guard))
	mux.Handle("/metrics", reg)
	mux.Handle("/ws/stream", s.stream)
	s.handler = mux

	return s, nil
}

func openStore(ctx context.Context, sc config.StorageConfig) (*store.Store, error) {
	if sc.Backend != "sqlite" {
		return store.New(), nil
	}
	b, err := store.OpenSQLite(sc.Path)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	slog.Info("store: using sqlite", "path", sc.Path)
	return st, nil
}

// Handler returns the HTTP handler for /api/, /metrics and /ws/stream.
func (s *Server) Handler() http.Handler { return s.handler }

// Store returns the record store.
func (s *Server) Store() *store.Store { return s.store }

// Run starts the hub dispatcher, the stream and the producer, and blocks
// until ctx is cancelled and they have all returned.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	start(s.hub.Run)
	start(s.stream.Run)
	if s.producer != nil {
		start(s.producer.Run)
	}
	wg.Wait()
}

// Reload applies the hot-reloadable parts of cfg: producer interval and
// log level.
func (s *Server) Reload(cfg *config.Config) {
	if s.producer != nil {
		s.producer.SetInterval(cfg.Server.Producer.Interval)
	}
	if s.level != nil {
		s.level.Set(parseLevel(cfg.Log.Level))
	}
}

// Close releases the store backend.
func (s *Server) Close() error {
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("server: close store: %w", err)
	}
	return nil
}
