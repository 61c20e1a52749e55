// Package config handles configuration loading for presence-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PRESENCE_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	presence:
//	  reconnect_grace_period: "120s"
//	  write_timeout: "10s"
//	  pong_timeout: "60s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  allowed_origins:
//	    - "http://localhost:5173"
//
// Database (connection audit log):
//
//	database:
//	  path: "/var/lib/presence/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${PRESENCE_JWT_SECRET}"
//
// Consumer-side reconnection policy:
//
//	client:
//	  reconnect_attempts: 5
//	  reconnect_delay: "1500ms"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
