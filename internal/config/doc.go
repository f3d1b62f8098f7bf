// Package config handles configuration loading for fanclub-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension),
// with environment variable expansion, FANCLUB_* overrides, defaults and
// validation, in that order.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FANCLUB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/fanclub/gateway.yaml
//  3. ~/.config/fanclub/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${FANCLUB_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
// These variables replace the parsed value when non-empty:
//
//	FANCLUB_HTTP_ADDR   server.http_addr
//	FANCLUB_GRPC_ADDR   server.grpc_addr
//	FANCLUB_DB_PATH     database.path
//	FANCLUB_DB_DRIVER   database.driver
//	FANCLUB_JWT_SECRET  auth.jwt_secret
//	FANCLUB_LOG_LEVEL   logging.level
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  grpc_addr: "127.0.0.1:50051"   # optional, gRPC health + reflection
//
//	tailscale:
//	  enabled: false
//	  hostname: "fanclub"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: ""
//	  ephemeral: false
//	  https: false
//	  funnel: false
//
//	database:
//	  driver: "sqlite"        # or "sqlite3" for the cgo driver
//	  path: "~/.local/share/fanclub/fanclub.db"
//	  busy_timeout: "5s"
//
//	auth:
//	  jwt_secret: "${FANCLUB_JWT_SECRET}"   # at least 32 bytes
//
//	limits:
//	  club_name_max: 100
//	  club_description_max: 2000
//	  post_body_max: 1000
//	  post_images_max: 9
//	  page_size_default: 20
//	  page_size_max: 100
//
//	cache:
//	  club_list_ttl: "1m"     # negative disables the cache
//	  max_entries: 1000
//
//	rate_limit:
//	  requests_per_second: 20
//	  burst: 40
//
//	logging:
//	  level: "info"           # debug, info, warn, error
//	  format: "text"          # text or json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("500ms", "10s", "5m").
package config
