// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, env overrides, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FANCLUB_HTTP_ADDR", "FANCLUB_GRPC_ADDR", "FANCLUB_DB_PATH",
		"FANCLUB_DB_DRIVER", "FANCLUB_JWT_SECRET", "FANCLUB_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"

database:
  driver: "sqlite3"
  path: "./test.db"
  busy_timeout: "2s"

auth:
  jwt_secret: "`+testSecret+`"

limits:
  club_name_max: 50
  page_size_default: 10
  page_size_max: 50

cache:
  club_list_ttl: "30s"
  max_entries: 10

rate_limit:
  requests_per_second: 5
  burst: 10

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.Database.Driver != "sqlite3" || cfg.Database.Path != "./test.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Database.BusyTimeout = %v, want 2s", cfg.Database.BusyTimeout)
	}
	if cfg.Limits.ClubNameMax != 50 || cfg.Limits.PageSizeDefault != 10 || cfg.Limits.PageSizeMax != 50 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if cfg.Cache.ClubListTTL != 30*time.Second || cfg.Cache.MaxEntries != 10 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.RateLimit.RequestsPerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9090"

[database]
path = "/tmp/fanclub.db"

[auth]
jwt_secret = "`+testSecret+`"

[cache]
club_list_ttl = "1m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/tmp/fanclub.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Cache.ClubListTTL != time.Minute {
		t.Errorf("Cache.ClubListTTL = %v, want 1m", cfg.Cache.ClubListTTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Server.GRPCAddr != "" {
		t.Errorf("Server.GRPCAddr = %q, want empty", cfg.Server.GRPCAddr)
	}
	if cfg.Database.Driver != DefaultDBDriver {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.BusyTimeout != DefaultBusyTimeout {
		t.Errorf("Database.BusyTimeout = %v", cfg.Database.BusyTimeout)
	}
	if cfg.Cache.ClubListTTL != DefaultClubListTTL || cfg.Cache.MaxEntries != DefaultCacheEntries {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.RateLimit.RequestsPerSecond != DefaultRequestsPerSecond || cfg.RateLimit.Burst != DefaultBurst {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q", cfg.Metrics.Path)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_FANCLUB_SECRET", testSecret)
	t.Setenv("TEST_FANCLUB_DB", "/data/expanded.db")

	path := writeConfig(t, "gateway.yaml", `
database:
  path: "${TEST_FANCLUB_DB}"
auth:
  jwt_secret: "${TEST_FANCLUB_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/data/expanded.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret not expanded")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FANCLUB_HTTP_ADDR", "0.0.0.0:1234")
	t.Setenv("FANCLUB_GRPC_ADDR", "0.0.0.0:5678")
	t.Setenv("FANCLUB_DB_PATH", "/override.db")
	t.Setenv("FANCLUB_DB_DRIVER", "sqlite3")
	t.Setenv("FANCLUB_JWT_SECRET", strings.Repeat("z", 40))
	t.Setenv("FANCLUB_LOG_LEVEL", "warn")

	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./file.db"
auth:
  jwt_secret: "`+testSecret+`"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:1234" || cfg.Server.GRPCAddr != "0.0.0.0:5678" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Path != "/override.db" || cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Auth.JWTSecret != strings.Repeat("z", 40) {
		t.Error("Auth.JWTSecret not overridden")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("Load() error = %v, want reading error", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", "server: [unclosed")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "gateway.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
cache:
  club_list_ttl: "soon"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "club_list_ttl") {
		t.Fatalf("Load() error = %v, want duration error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
			Database: DatabaseConfig{Driver: "sqlite", Path: "./x.db"},
			Auth:     AuthConfig{JWTSecret: testSecret},
			Logging:  LoggingConfig{Level: "info", Format: "text"},
			Metrics:  MetricsConfig{Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "fanclub"}
		}, ""},
		{"no db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"negative limit", func(c *Config) { c.Limits.PostBodyMax = -1 }, "limits.post_body_max"},
		{"default above max", func(c *Config) {
			c.Limits.PageSizeDefault = 50
			c.Limits.PageSizeMax = 10
		}, "page_size_default"},
		{"rate without burst", func(c *Config) { c.RateLimit.RequestsPerSecond = 1 }, "rate_limit.burst"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) {
			c.Metrics = MetricsConfig{Enabled: true, Path: "metrics"}
		}, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	t.Setenv("TEST_FANCLUB_SET", "yes")
	got := expandEnvVars("a=${TEST_FANCLUB_SET} b=${TEST_FANCLUB_DEFINITELY_UNSET}")
	if got != "a=yes b=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
