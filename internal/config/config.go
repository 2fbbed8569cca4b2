// Package config loads and validates the offsync YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/njoerd114/offsync/internal/model"
)

// TokenEnv overrides the token from the file when set.
const TokenEnv = "OFFSYNC_TOKEN"

// Defaults and limits applied by validate.
const (
	DefaultPollInterval = 30 * time.Second
	MinPollInterval     = 5 * time.Second
	MaxPollInterval     = 10 * time.Minute

	DefaultPageSize = 100
	MaxPageSize     = 1000

	DefaultProbeTimeout = 2 * time.Second
	MaxProbeTimeout     = 10 * time.Second
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// RemoteURL is the base URL of the authoritative store (e.g. "https://sync.example.com").
	RemoteURL string `yaml:"remote_url"`

	// Token is the bearer token sent with every remote request.
	Token string `yaml:"token"`

	// ActorID identifies the local user. Owned entities created through the
	// CLI carry it, and edits to entities owned by someone else are refused.
	ActorID string `yaml:"actor_id"`

	// DBPath is the SQLite file holding the local replica. Defaults to
	// ~/.local/share/offsync/offsync.db.
	DBPath string `yaml:"db_path,omitempty"`

	// PollInterval controls how often the daemon runs a full sync.
	// Minimum 5s, maximum 10m. Defaults to 30s if unset.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// PageSize is the listing page size used by pulls (1..1000, default 100).
	PageSize int `yaml:"page_size,omitempty"`

	// ProbeTimeout bounds the connectivity check before each pass. Maximum
	// 10s, default 2s.
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`

	// Collections selects which entity kinds are synchronized. Empty means
	// all of them.
	Collections []string `yaml:"collections,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "offsync".
	ServiceName string `yaml:"service_name,omitempty"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/offsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "offsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Token = tok
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write validates the configuration and stores it at path with owner-only
// permissions, creating parent directories as needed.
func (c *Config) Write(fs afero.Fs, path string) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// EnabledCollections returns the configured collections, or every known
// collection when none are listed.
func (c *Config) EnabledCollections() []string {
	if len(c.Collections) == 0 {
		return model.Collections()
	}
	return c.Collections
}

// validate checks that all required fields are present and well-formed, and
// fills in defaults.
func (c *Config) validate() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url is required")
	}
	u, err := url.ParseRequestURI(c.RemoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote_url %q must be a valid http or https URL", c.RemoteURL)
	}

	if c.Token == "" {
		return fmt.Errorf("token is required (or set %s)", TokenEnv)
	}

	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollInterval < MinPollInterval {
		return fmt.Errorf("poll_interval %v is too short (minimum %v)", c.PollInterval, MinPollInterval)
	}
	if c.PollInterval > MaxPollInterval {
		return fmt.Errorf("poll_interval %v is too long (maximum %v)", c.PollInterval, MaxPollInterval)
	}

	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("page_size %d must be between 1 and %d", c.PageSize, MaxPageSize)
	}

	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeTimeout < 0 || c.ProbeTimeout > MaxProbeTimeout {
		return fmt.Errorf("probe_timeout %v must be between 0 and %v", c.ProbeTimeout, MaxProbeTimeout)
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, name := range c.Collections {
		if !model.IsCollection(name) {
			return fmt.Errorf("collections: unknown collection %q (known: %v)", name, model.Collections())
		}
		if seen[name] {
			return fmt.Errorf("collections: %q listed twice", name)
		}
		seen[name] = true
	}
	slices.Sort(c.Collections)

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
