// Package providers groups the host facilities the broker delegates to.
//
// Subpackages:
//   - http: outbound transport for fetch and download, rate limited
//   - deps: @require/@resource and update fetching with retries and caching
//   - download: writes fetched files into the download directory
//   - cookies: RFC 6265 cookie store backing GM_cookie
//   - notify: sanitized notification history
//   - storage: scripts, values and permission grants in memory, grants
//     optionally persisted to YAML
//
// Each provider is constructed once in the server and injected into the
// broker or the script manager through small interfaces.
package providers
