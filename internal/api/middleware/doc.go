// Package middleware provides the gin middleware of the management API:
// CORS, per-client and global rate limits, and a request body cap.
package middleware
