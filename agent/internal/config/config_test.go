package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:8080"
  interval: 500ms
  batch_size: 5
  id_space: 50
  seed: 9
  buffer_size: 20
  server_auth:
    mode: apikey
    key_env: AGENT_KEY
    header: X-Live-Key
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ServerURL != "http://localhost:8080" {
		t.Errorf("server_url: got %q", a.ServerURL)
	}
	if a.Interval != 500*time.Millisecond {
		t.Errorf("interval: got %v", a.Interval)
	}
	if a.BatchSize != 5 || a.IDSpace != 50 || a.Seed != 9 {
		t.Errorf("batch: got %d/%d/%d", a.BatchSize, a.IDSpace, a.Seed)
	}
	if a.BufferSize != 20 {
		t.Errorf("buffer_size: got %d", a.BufferSize)
	}
	if a.ServerAuth.Mode != "apikey" || a.ServerAuth.EffectiveHeader() != "X-Live-Key" {
		t.Errorf("server_auth: got %+v", a.ServerAuth)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  server_url: "http://localhost:8080"
`)
	a := cfg.Agent
	if a.Interval != DefaultInterval {
		t.Errorf("interval: got %v, want %v", a.Interval, DefaultInterval)
	}
	if a.BatchSize != DefaultBatchSize {
		t.Errorf("batch_size: got %d, want %d", a.BatchSize, DefaultBatchSize)
	}
	if a.IDSpace != DefaultIDSpace {
		t.Errorf("id_space: got %d, want %d", a.IDSpace, DefaultIDSpace)
	}
	if a.BufferSize != DefaultBufferSize {
		t.Errorf("buffer_size: got %d, want %d", a.BufferSize, DefaultBufferSize)
	}
	if h := a.ServerAuth.EffectiveHeader(); h != DefaultHeader {
		t.Errorf("header: got %q, want %q", h, DefaultHeader)
	}
}

func TestLoad_IgnoresServerSection(t *testing.T) {
	cfg := loadFromString(t, `
server:
  http_port: 9000
  storage:
    backend: sqlite
agent:
  server_url: "https://live.example.com"
`)
	if cfg.Agent.ServerURL != "https://live.example.com" {
		t.Errorf("server_url: got %q", cfg.Agent.ServerURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing url":    "agent:\n  interval: 1s\n",
		"missing scheme": "agent:\n  server_url: \"localhost:8080\"\n",
		"interval":       "agent:\n  server_url: \"http://x\"\n  interval: -1s\n",
		"batch size":     "agent:\n  server_url: \"http://x\"\n  batch_size: 0\n",
		"id space":       "agent:\n  server_url: \"http://x\"\n  id_space: -5\n",
		"buffer":         "agent:\n  server_url: \"http://x\"\n  buffer_size: 0\n",
		"auth mode":      "agent:\n  server_url: \"http://x\"\n  server_auth:\n    mode: oauth2\n",
		"mtls files":     "agent:\n  server_url: \"https://x\"\n  server_auth:\n    mode: mtls\n",
	}
	for name, body := range cases {
		if _, err := loadStringErr(t, body); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_AGENT_KEY", "abc123")
	a := AuthConfig{KeyEnv: "TEST_AGENT_KEY"}
	if a.Key() != "abc123" {
		t.Errorf("Key(): got %q, want abc123", a.Key())
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	if k := (AuthConfig{}).Key(); k != "" {
		t.Errorf("Key(): got %q, want empty", k)
	}
}

func TestWatch_CallsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(s string) {
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("agent:\n  server_url: \"http://localhost:8080\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	time.Sleep(50 * time.Millisecond)
	write("agent:\n  server_url: \"http://localhost:8080\"\n  interval: 5s\n")

	timeout := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Agent.Interval == 5*time.Second {
				return
			}
		case <-timeout:
			t.Fatal("no reload with interval 5s within 3s")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimLeft(content, "\n")), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
