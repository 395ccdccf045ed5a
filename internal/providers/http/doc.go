// Package http is the outbound HTTP transport behind the broker's fetch
// capability.
//
// Client wraps resty with a rate limiter and a pooled transport. It never
// retries, keeps no cookie jar and hands back the raw body so callers can
// stream it. Redirects are followed only while the RedirectCheck carried in
// the request context accepts each hop.
package http
