package http

import (
	"net/http"
	"sort"
	"strings"
)

// FormatHeaders serializes h as "name: value" lines joined by "\n", names
// lowercased and sorted, one line per value.
func FormatHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			lines = append(lines, lower+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
