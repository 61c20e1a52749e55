// ABOUTME: Configuration loading and parsing for presence-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete presence-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Presence PresenceConfig `yaml:"presence"`
	Client   ClientConfig   `yaml:"client"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address and origin configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PresenceConfig holds connection lifecycle timing configuration
type PresenceConfig struct {
	ReconnectGracePeriod time.Duration `yaml:"-"`
	WriteTimeout         time.Duration `yaml:"-"`
	PongTimeout          time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectGracePeriodRaw string `yaml:"reconnect_grace_period"`
	WriteTimeoutRaw         string `yaml:"write_timeout"`
	PongTimeoutRaw          string `yaml:"pong_timeout"`
}

// ClientConfig holds consumer-side reconnection policy defaults
type ClientConfig struct {
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"-"`

	ReconnectDelayRaw string `yaml:"reconnect_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults applied when the corresponding YAML keys are absent.
const (
	DefaultReconnectGracePeriod = 120 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultPongTimeout          = 60 * time.Second
	DefaultReconnectAttempts    = 5
	DefaultReconnectDelay       = 1500 * time.Millisecond
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Client.ReconnectAttempts < 0 {
		return fmt.Errorf("client.reconnect_attempts must not be negative")
	}

	return nil
}

// applyDefaults fills in zero-valued timing and retry fields.
func (c *Config) applyDefaults() {
	if c.Presence.ReconnectGracePeriod == 0 {
		c.Presence.ReconnectGracePeriod = DefaultReconnectGracePeriod
	}
	if c.Presence.WriteTimeout == 0 {
		c.Presence.WriteTimeout = DefaultWriteTimeout
	}
	if c.Presence.PongTimeout == 0 {
		c.Presence.PongTimeout = DefaultPongTimeout
	}
	if c.Client.ReconnectAttempts == 0 {
		c.Client.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Client.ReconnectDelay == 0 {
		c.Client.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Presence.ReconnectGracePeriodRaw != "" {
		cfg.Presence.ReconnectGracePeriod, err = time.ParseDuration(cfg.Presence.ReconnectGracePeriodRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_grace_period %q: %w", cfg.Presence.ReconnectGracePeriodRaw, err)
		}
	}

	if cfg.Presence.WriteTimeoutRaw != "" {
		cfg.Presence.WriteTimeout, err = time.ParseDuration(cfg.Presence.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Presence.WriteTimeoutRaw, err)
		}
	}

	if cfg.Presence.PongTimeoutRaw != "" {
		cfg.Presence.PongTimeout, err = time.ParseDuration(cfg.Presence.PongTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing pong_timeout %q: %w", cfg.Presence.PongTimeoutRaw, err)
		}
	}

	if cfg.Client.ReconnectDelayRaw != "" {
		cfg.Client.ReconnectDelay, err = time.ParseDuration(cfg.Client.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Client.ReconnectDelayRaw, err)
		}
	}

	return nil
}
