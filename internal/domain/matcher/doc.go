// Package matcher compiles userscript URL patterns into match predicates.
//
// Four pattern dialects are recognised, tried in this order:
//
//  1. "*" and "<all_urls>": universal patterns. "<all_urls>" is restricted to
//     the http, https, file and ftp schemes.
//  2. "/.../": the interior is an ECMAScript regular expression tested
//     (unanchored) against the raw URL.
//  3. "scheme://host/path" match patterns. A "*" scheme means http or https,
//     a "*" host matches any host and "*.example.com" matches every subdomain
//     of example.com but not example.com itself.
//  4. Globs: "*" expands to any run of characters and the whole URL must match.
//
// A pattern that looks like a match pattern but is malformed is not an error:
// it is treated as a glob. A pattern that cannot be compiled at all yields a
// Matcher that never matches; the failure is logged through zap.L().
//
// All regular expressions built from pattern text go through Escape and
// Wildcard, so user-controlled fragments can never inject metacharacters.
//
// Example Usage:
//
//	m := matcher.Compile("https://*.example.com/*")
//	m.Test("https://a.example.com/p") // true
//	m.Test("https://example.com/p")   // false
package matcher
