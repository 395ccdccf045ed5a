// Package config provides 12-factor configuration management for scriptgate.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, allowed origins)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting of the management API
//   - Broker: fetch timeout, body limit, user agent, outbound rate
//   - Policy: optional TOML baseline override
//   - Storage: grants file, scripts directory, download directory
//   - Dependencies: @require/@resource cache TTL and retries
//   - Locale: preferred locales for localized @name/@description
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Addr())
package config
