// Package deps fetches and caches @require and @resource bodies, and
// downloads script updates.
//
// Unlike the broker's fetch path this client retries (retryablehttp) and sits
// behind a circuit breaker. Cached bodies are stored zstd compressed and kept
// past expiry when a refresh fails.
package deps
