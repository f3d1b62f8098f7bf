// ABOUTME: Configuration loading and parsing for fanclub-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values applied when a field is left empty.
const (
	DefaultHTTPAddr          = "127.0.0.1:8080"
	DefaultDBDriver          = "sqlite"
	DefaultBusyTimeout       = 5 * time.Second
	DefaultClubListTTL       = time.Minute
	DefaultCacheEntries      = 1000
	DefaultRequestsPerSecond = 20
	DefaultBurst             = 40
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Config represents the complete fanclub-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Limits    LimitsConfig    `yaml:"limits" toml:"limits"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration. GRPCAddr is optional and
// enables the gRPC health endpoint.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTP on :443 with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly via Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string        `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path        string        `yaml:"path" toml:"path"`
	BusyTimeout time.Duration `yaml:"-" toml:"-"`

	BusyTimeoutRaw string `yaml:"busy_timeout" toml:"busy_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LimitsConfig bounds field lengths and page sizes. Zero means the built-in
// default.
type LimitsConfig struct {
	ClubNameMax        int `yaml:"club_name_max" toml:"club_name_max"`
	ClubDescriptionMax int `yaml:"club_description_max" toml:"club_description_max"`
	PostBodyMax        int `yaml:"post_body_max" toml:"post_body_max"`
	PostImagesMax      int `yaml:"post_images_max" toml:"post_images_max"`
	PageSizeDefault    int `yaml:"page_size_default" toml:"page_size_default"`
	PageSizeMax        int `yaml:"page_size_max" toml:"page_size_max"`
}

// CacheConfig controls the club list cache. A negative TTL disables it.
type CacheConfig struct {
	ClubListTTL time.Duration `yaml:"-" toml:"-"`
	MaxEntries  int           `yaml:"max_entries" toml:"max_entries"`

	ClubListTTLRaw string `yaml:"club_list_ttl" toml:"club_list_ttl"`
}

// RateLimitConfig holds the per-principal token bucket. Zero rate disables
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// envOverrides holds values read from the environment after the file is
// parsed. Empty values leave the file's value in place.
type envOverrides struct {
	HTTPAddr  string `env:"FANCLUB_HTTP_ADDR"`
	GRPCAddr  string `env:"FANCLUB_GRPC_ADDR"`
	DBPath    string `env:"FANCLUB_DB_PATH"`
	DBDriver  string `env:"FANCLUB_DB_DRIVER"`
	JWTSecret string `env:"FANCLUB_JWT_SECRET"`
	LogLevel  string `env:"FANCLUB_LOG_LEVEL"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded before parsing,
// and FANCLUB_* variables override the parsed values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(expandEnvVars(string(data)), formatOf(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes already-expanded configuration text in the given format
// ("yaml" or "toml"), then applies env overrides, durations and defaults,
// and validates the result.
func Parse(text, format string) (*Config, error) {
	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
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

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Server.HTTPAddr, e.HTTPAddr)
	override(&cfg.Server.GRPCAddr, e.GRPCAddr)
	override(&cfg.Database.Path, e.DBPath)
	override(&cfg.Database.Driver, e.DBDriver)
	override(&cfg.Auth.JWTSecret, e.JWTSecret)
	override(&cfg.Logging.Level, e.LogLevel)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = DefaultBusyTimeout
	}
	if c.Cache.ClubListTTL == 0 {
		c.Cache.ClubListTTL = DefaultClubListTTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheEntries
	}
	if c.RateLimit.RequestsPerSecond == 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
		c.RateLimit.Burst = DefaultBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	l := c.Limits
	for name, v := range map[string]int{
		"limits.club_name_max":        l.ClubNameMax,
		"limits.club_description_max": l.ClubDescriptionMax,
		"limits.post_body_max":        l.PostBodyMax,
		"limits.post_images_max":      l.PostImagesMax,
		"limits.page_size_default":    l.PageSizeDefault,
		"limits.page_size_max":        l.PageSizeMax,
		"cache.max_entries":           c.Cache.MaxEntries,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if l.PageSizeDefault > 0 && l.PageSizeMax > 0 && l.PageSizeDefault > l.PageSizeMax {
		return fmt.Errorf("limits.page_size_default (%d) exceeds limits.page_size_max (%d)", l.PageSizeDefault, l.PageSizeMax)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst is required when requests_per_second is set")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Database.BusyTimeoutRaw != "" {
		cfg.Database.BusyTimeout, err = time.ParseDuration(cfg.Database.BusyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing busy_timeout %q: %w", cfg.Database.BusyTimeoutRaw, err)
		}
	}

	if cfg.Cache.ClubListTTLRaw != "" {
		cfg.Cache.ClubListTTL, err = time.ParseDuration(cfg.Cache.ClubListTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing club_list_ttl %q: %w", cfg.Cache.ClubListTTLRaw, err)
		}
	}

	return nil
}
