// ABOUTME: Configuration loading and parsing for support-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MemoryDatabase selects the in-memory store instead of SQLite.
const MemoryDatabase = ":memory:"

// Config represents the complete support-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Model     ModelConfig     `yaml:"model" toml:"model"`
	Routing   RoutingConfig   `yaml:"routing" toml:"routing"`
	Agents    []AgentConfig   `yaml:"agents" toml:"agents" validate:"dive"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" validate:"omitempty,hostname_port"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr" validate:"omitempty,hostname_port"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// ModelConfig selects and tunes the language-model provider
type ModelConfig struct {
	Provider    string  `yaml:"provider" toml:"provider" validate:"required,oneof=openai anthropic"`
	Name        string  `yaml:"name" toml:"name" validate:"required"`
	BaseURL     string  `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `yaml:"top_p" toml:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	MaxRetries  int     `yaml:"max_retries" toml:"max_retries" validate:"gte=0,lte=10"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// RoutingConfig bounds each routing cycle
type RoutingConfig struct {
	MaxTurns      int    `yaml:"max_turns" toml:"max_turns" validate:"gte=1,lte=20"`
	HistoryWindow int    `yaml:"history_window" toml:"history_window" validate:"gte=1"`
	DefaultAgent  string `yaml:"default_agent" toml:"default_agent" validate:"oneof=technical_agent billing_agent general_info_agent"`

	CycleTimeout    time.Duration `yaml:"-" toml:"-"`
	CycleTimeoutRaw string        `yaml:"cycle_timeout" toml:"cycle_timeout"`
}

// AgentConfig overrides the description or prompt of one built-in agent
type AgentConfig struct {
	Name        string `yaml:"name" toml:"name" validate:"required,oneof=technical_agent billing_agent general_info_agent"`
	Description string `yaml:"description" toml:"description"`
	Prompt      string `yaml:"prompt" toml:"prompt"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" validate:"omitempty,min=32"`
}

// DedupeConfig sizes the request-id dedupe window
type DedupeConfig struct {
	MaxSize int `yaml:"max_size" toml:"max_size" validate:"gte=0"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	return Parse(data, format)
}

// Parse decodes, defaults and validates configuration data in the given
// format ("yaml" or "toml").
func Parse(data []byte, format string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Model.Name == "" {
		switch c.Model.Provider {
		case "anthropic":
			c.Model.Name = "claude-3-5-haiku-latest"
		default:
			c.Model.Name = "gpt-4o-mini"
		}
	}
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "openai":
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	// Zero means unset; routing wants near-deterministic completions.
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.1
	}
	if c.Model.TopP == 0 {
		c.Model.TopP = 0.1
	}
	if c.Model.RequestTimeout == 0 {
		c.Model.RequestTimeout = 30 * time.Second
	}

	if c.Routing.MaxTurns == 0 {
		c.Routing.MaxTurns = 3
	}
	if c.Routing.HistoryWindow == 0 {
		c.Routing.HistoryWindow = 10
	}
	if c.Routing.DefaultAgent == "" {
		c.Routing.DefaultAgent = "general_info_agent"
	}
	if c.Routing.CycleTimeout == 0 {
		c.Routing.CycleTimeout = 60 * time.Second
	}

	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 10 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}

	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Model.APIKey == "" && c.Model.BaseURL == "" {
		return fmt.Errorf("model.api_key is required for provider %s", c.Model.Provider)
	}

	if c.Routing.CycleTimeout < 0 || c.Model.RequestTimeout < 0 || c.Dedupe.TTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Model.RequestTimeout > c.Routing.CycleTimeout {
		return fmt.Errorf("model.request_timeout (%s) must not exceed routing.cycle_timeout (%s)",
			c.Model.RequestTimeout, c.Routing.CycleTimeout)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[a.Name] {
			return fmt.Errorf("agents: duplicate override for %s", a.Name)
		}
		seen[a.Name] = true
	}

	return nil
}

// UsesMemoryStore reports whether the in-memory store was requested.
func (c *Config) UsesMemoryStore() bool {
	return c.Database.Path == MemoryDatabase
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"model.request_timeout", cfg.Model.RequestTimeoutRaw, &cfg.Model.RequestTimeout},
		{"routing.cycle_timeout", cfg.Routing.CycleTimeoutRaw, &cfg.Routing.CycleTimeout},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
