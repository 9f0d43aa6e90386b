package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval   = 2 * time.Second
	DefaultBatchSize  = 10
	DefaultIDSpace    = 1000
	DefaultBufferSize = 100
	DefaultHeader     = "X-API-Key"
)

// Config is the agent's view of config.yaml. The `server:` key in the same
// file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the base URL of the livelist server, e.g. http://localhost:8080.
	ServerURL string `yaml:"server_url"`

	// Interval controls how often a new batch is generated. Hot-reloadable.
	Interval time.Duration `yaml:"interval"`

	// BatchSize is the number of records per batch.
	BatchSize int `yaml:"batch_size"`

	// IDSpace bounds the random ids to [0, IDSpace).
	IDSpace int `yaml:"id_space"`

	// Seed for the random source; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`

	// BufferSize is the maximum number of batches held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// ServerAuth configures how the agent authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			Interval:   DefaultInterval,
			BatchSize:  DefaultBatchSize,
			IDSpace:    DefaultIDSpace,
			BufferSize: DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerURL == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	u, err := url.Parse(a.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.server_url %q must be an http(s) URL", a.ServerURL)
	}
	if a.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("agent.batch_size must be positive")
	}
	if a.IDSpace <= 0 {
		return fmt.Errorf("agent.id_space must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	switch a.ServerAuth.Mode {
	case "mtls":
		if a.ServerAuth.CertFile == "" || a.ServerAuth.KeyFile == "" {
			return fmt.Errorf("agent.server_auth: mtls needs cert_file and key_file")
		}
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", a.ServerAuth.Mode)
	}
	return nil
}
