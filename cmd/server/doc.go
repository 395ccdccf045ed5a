// Package main runs scriptgate, the privileged half of a userscript host.
//
// The server exposes a management API for installing scripts and editing
// per-domain grants, and a WebSocket channel at /stream through which
// script contexts invoke privileged capabilities.
//
// Configuration comes from environment variables (see
// internal/infrastructure/config); flags override them.
//
// Usage:
//
//	./server --port 8000 --scripts-dir ./scripts --grants-file grants.yaml
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
