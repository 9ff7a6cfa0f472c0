// Package config handles configuration loading for sage-gateway.
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
//	database:
//	  path: "${SAGE_DB_PATH}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "15s"
//	connectors:
//	  call_timeout: "45s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # All transports and the metrics endpoint
//	  shutdown_timeout: "15s"
//
// Database:
//
//	database:
//	  path: "/var/lib/sage/gateway.db"
//
// Connector execution:
//
//	connectors:
//	  call_timeout: "45s"   # Bounds one tool call or resource read
//
// Cross-origin requests:
//
//	cors:
//	  allowed_origins:
//	    - "https://app.example.com"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load() validates:
//
//   - Server HTTP address presence
//   - Database path presence
//   - Duration format validity
//   - Metrics path presence when metrics are enabled
//
// # Usage
//
// Load from a path:
//
//	cfg, err := config.Load("/etc/sage/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
