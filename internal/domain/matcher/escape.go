package matcher

import (
	"regexp"
	"strings"
)

// Escape quotes every regular expression metacharacter in fragment.
func Escape(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// Wildcard turns fragment into a regular expression in which "*" matches any
// run of characters and every other character matches itself.
func Wildcard(fragment string) string {
	parts := strings.Split(fragment, "*")
	for i, p := range parts {
		parts[i] = Escape(p)
	}
	return strings.Join(parts, ".*")
}
