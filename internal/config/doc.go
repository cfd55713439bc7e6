// Package config handles configuration loading for support-gateway.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by file extension) with
// environment variable expansion, defaults for everything optional, and
// struct-tag validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SUPPORT_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/support-gateway/gateway.yaml
//  3. ~/.config/support-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
//	model:
//	  api_key: "${OPENAI_API_KEY}"
//
// An empty model.api_key falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY
// depending on the provider.
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  grpc_addr: "127.0.0.1:50051"   # optional gRPC health endpoint
//
//	database:
//	  path: "/var/lib/support-gateway/gateway.db"   # or ":memory:"
//
//	model:
//	  provider: openai          # openai | anthropic
//	  name: gpt-4o-mini
//	  temperature: 0.1
//	  request_timeout: "30s"
//	  max_retries: 2
//
//	routing:
//	  max_turns: 3
//	  cycle_timeout: "60s"
//	  history_window: 10
//	  default_agent: general_info_agent
//
//	agents:
//	  - name: billing_agent
//	    prompt: "You are a billing agent for Acme. Refunds take 5 days."
//
//	auth:
//	  jwt_secret: "${SUPPORT_GATEWAY_JWT_SECRET}"   # empty disables API auth
//
//	dedupe:
//	  ttl: "10m"
//	  max_size: 10000
//
//	logging:
//	  level: info     # debug | info | warn | error
//	  format: text    # text | json
//
// Durations use time.ParseDuration syntax.
package config
