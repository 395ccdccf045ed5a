// Package http provides the management API.
//
// Routes:
//   - /scripts: install, list, update, delete, enable and update checks
//   - /scripts/:id/permissions: user connect grants, the only way to
//     create one
//   - /match: enabled scripts whose scope covers a URL
//   - /sessions: open channels and their menu commands
//   - /notifications: notification history
//   - /health, /metrics, /metrics/json, /schema/invocation
//
// Errors are JSON bodies {"error": "..."}; parse errors are 422, unknown
// scripts and sessions 404, bad input 400.
package http
