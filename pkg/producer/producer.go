package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livelist/livelist/pkg/types"
)

// DefaultInterval is the original demo's refresh period.
const DefaultInterval = 2 * time.Second

// Sink accepts a full replacement of its records.
type Sink interface {
	ReplaceAll(ctx context.Context, records []types.Record) error
}

// Source produces the next batch.
type Source interface {
	Next() []types.Record
}

// Stats are cumulative run counters.
type Stats struct {
	Runs     uint64
	Failures uint64
}

// Producer calls Sink.ReplaceAll with Source.Next every interval.
type Producer struct {
	sink Sink
	src  Source

	mu       sync.Mutex
	interval time.Duration
	changed  chan time.Duration

	runs     atomic.Uint64
	failures atomic.Uint64
}

// New creates a Producer. A non-positive interval uses DefaultInterval.
func New(sink Sink, src Source, interval time.Duration) *Producer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Producer{
		sink:     sink,
		src:      src,
		interval: interval,
		changed:  make(chan time.Duration, 1),
	}
}

// Run ticks until ctx is cancelled. The first batch is written one interval
// after Run starts.
func (p *Producer) Run(ctx context.Context) {
	t := time.NewTicker(p.Interval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.changed:
			t.Reset(d)
			slog.Info("producer: interval changed", "interval", d)
		case <-t.C:
			if err := p.RunOnce(ctx); err != nil {
				slog.Warn("producer: batch rejected", "err", err)
			}
		}
	}
}

// RunOnce writes one batch immediately.
func (p *Producer) RunOnce(ctx context.Context) error {
	batch := p.src.Next()
	p.runs.Add(1)
	if err := p.sink.ReplaceAll(ctx, batch); err != nil {
		p.failures.Add(1)
		return fmt.Errorf("producer: replace all: %w", err)
	}
	slog.Debug("producer: batch written", "records", len(batch))
	return nil
}

// SetInterval changes the tick period of a running (or future) Run.
// Non-positive values are ignored.
func (p *Producer) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if d == p.interval {
		return
	}
	p.interval = d
	// Keep only the latest pending change.
	select {
	case <-p.changed:
	default:
	}
	p.changed <- d
}

// Interval returns the current tick period.
func (p *Producer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Stats returns the cumulative counters.
func (p *Producer) Stats() Stats {
	return Stats{Runs: p.runs.Load(), Failures: p.failures.Load()}
}
