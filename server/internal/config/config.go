package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livelist/livelist/pkg/fixture"
	"github.com/livelist/livelist/pkg/producer"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort   = 8080
	DefaultBackend    = "memory"
	DefaultSQLitePath = "livelist.db"
	DefaultSendBuffer = 16
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultAuthHeader = "X-API-Key"
	DefaultProducerOn = true
)

// Config holds the server-side configuration parsed from config.yaml.
// The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket stream listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates mutating REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Storage selects where records live.
	Storage StorageConfig `yaml:"storage"`

	// Producer controls the built-in fixture producer.
	Producer ProducerConfig `yaml:"producer"`

	// Stream controls WebSocket delivery.
	Stream StreamConfig `yaml:"stream"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "X-API-Key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// StorageConfig selects the record backend.
type StorageConfig struct {
	// Backend is one of: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Used when Backend == "sqlite".
	Path string `yaml:"path"`
}

// ProducerConfig controls the fixture producer that rewrites the table on a timer.
type ProducerConfig struct {
	// Enabled turns the producer on (default true).
	Enabled bool `yaml:"enabled"`

	// Interval between batches (default 2s). Hot-reloadable.
	Interval time.Duration `yaml:"interval"`

	// BatchSize is the number of records per batch (default 10).
	BatchSize int `yaml:"batch_size"`

	// IDSpace bounds the random ids to [0, IDSpace) (default 1000).
	IDSpace int `yaml:"id_space"`

	// Seed for the random source; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// StreamConfig controls the WebSocket stream.
type StreamConfig struct {
	// SendBuffer is the per-client outgoing message buffer depth (default 16).
	// A client that falls this far behind is disconnected.
	SendBuffer int `yaml:"send_buffer"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is what
// the server runs with when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Storage: StorageConfig{
				Backend: DefaultBackend,
				Path:    DefaultSQLitePath,
			},
			Producer: ProducerConfig{
				Enabled:   DefaultProducerOn,
				Interval:  producer.DefaultInterval,
				BatchSize: fixture.DefaultSize,
				IDSpace:   fixture.DefaultSpace,
			},
			Stream: StreamConfig{
				SendBuffer: DefaultSendBuffer,
			},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Storage.Backend {
	case "memory":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite", s.Storage.Backend)
	}
	if s.Producer.Interval <= 0 {
		return fmt.Errorf("server.producer.interval must be positive")
	}
	if s.Producer.BatchSize <= 0 {
		return fmt.Errorf("server.producer.batch_size must be positive")
	}
	if s.Producer.IDSpace <= 0 {
		return fmt.Errorf("server.producer.id_space must be positive")
	}
	if s.Stream.SendBuffer <= 0 {
		return fmt.Errorf("server.stream.send_buffer must be positive")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}
