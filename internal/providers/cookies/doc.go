// Package cookies provides the in-memory cookie store the broker's cookie
// capability operates on.
//
// Storage rules follow RFC 6265: domain and path matching, host-only
// cookies, expiry and the Secure flag. Cookies scoped to a public suffix
// (per golang.org/x/net/publicsuffix) are refused.
package cookies
