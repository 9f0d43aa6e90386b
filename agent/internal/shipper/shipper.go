package shipper

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livelist/livelist/agent/internal/config"
	"github.com/livelist/livelist/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
	recordsPath       = "/api/v1/records"
)

// batch is one ReplaceAll waiting to be shipped.
type batch struct {
	id      string
	records []types.Record
}

// Shipper buffers record batches and ships them to the server over HTTP.
// ReplaceAll() is non-blocking; when the buffer is full the oldest batch is
// evicted. Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan batch
	client *http.Client
	url    string

	retryInitial time.Duration // injectable for tests
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	client, err := httpClient(cfg.ServerAuth)
	if err != nil {
		return nil, err
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:          cfg,
		buf:          make(chan batch, size),
		client:       client,
		url:          strings.TrimRight(cfg.ServerURL, "/") + recordsPath,
		retryInitial: backoffInitial,
	}, nil
}

// ReplaceAll enqueues records for shipping. It never blocks and never fails;
// if the buffer is full the oldest batch is evicted to make room.
func (s *Shipper) ReplaceAll(_ context.Context, records []types.Record) error {
	b := batch{id: uuid.Must(uuid.NewV7()).String(), records: records}
	for {
		select {
		case s.buf <- b:
			return nil
		default:
		}
		// Buffer full: drop the oldest batch, keep the newest.
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest batch",
				"batch", old.id, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Pending returns the number of buffered batches.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, sending batches to the server in order.
// A failed batch is retried with exponential backoff until it is delivered,
// rejected permanently, or ctx is cancelled. Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.retryInitial)

	for {
		var b batch
		select {
		case <-ctx.Done():
			return
		case b = <-s.buf:
		}

		for {
			err := s.send(ctx, b)
			if err == nil {
				bo.reset()
				slog.Debug("shipper: batch delivered", "batch", b.id, "records", len(b.records))
				break
			}
			if ctx.Err() != nil {
				return
			}
			if isPermanentError(err) {
				slog.Error("shipper: permanent send error, discarding batch",
					"batch", b.id, "err", err)
				break
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"url", s.url,
				"batch", b.id,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// statusError is a non-2xx answer from the server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.code, e.body)
}

// send PUTs one batch.
func (s *Shipper) send(ctx context.Context, b batch) error {
	body, err := json.Marshal(b.records)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPut, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", b.id)
	if s.cfg.ServerAuth.Mode == "apikey" {
		if key := s.cfg.ServerAuth.Key(); key != "" {
			req.Header.Set(s.cfg.ServerAuth.EffectiveHeader(), key)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

// isPermanentError returns true for answers that indicate the batch itself
// (or the agent's credentials) is invalid and should not be retried.
func isPermanentError(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return false
	}
	switch se.code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// httpClient builds the client for the configured auth mode.
func httpClient(auth config.AuthConfig) (*http.Client, error) {
	if auth.Mode != "mtls" {
		return &http.Client{}, nil
	}
	tlsCfg, err := buildMTLSConfig(auth)
	if err != nil {
		return nil, fmt.Errorf("shipper: build mtls config: %w", err)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsCfg
	return &http.Client{Transport: tr}, nil
}

// buildMTLSConfig loads client certificate and optional CA from the auth config.
func buildMTLSConfig(auth config.AuthConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
