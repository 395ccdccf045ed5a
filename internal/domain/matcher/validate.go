package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotMatchPattern = errors.New("not a scheme://host/path match pattern")
	ErrInvalidScheme   = errors.New("unsupported scheme")
	ErrInvalidHost     = errors.New("invalid host")
	ErrInvalidPath     = errors.New("invalid path")
)

// matchPatternShape splits scheme://host/path. Scheme and host legality are
// checked separately so errors can say what is wrong.
var matchPatternShape = regexp.MustCompile(`^([^:/]+)://([^/]*)(.*)$`)

var matchSchemes = map[string]bool{
	"*":     true,
	"http":  true,
	"https": true,
	"file":  true,
	"ftp":   true,
}

type matchPattern struct {
	scheme string
	host   string
	path   string
}

// parseMatchPattern parses a strict scheme://host/path pattern.
func parseMatchPattern(pattern string) (matchPattern, error) {
	parts := matchPatternShape.FindStringSubmatch(pattern)
	if parts == nil {
		return matchPattern{}, ErrNotMatchPattern
	}
	mp := matchPattern{scheme: parts[1], host: parts[2], path: parts[3]}

	if !matchSchemes[mp.scheme] {
		return matchPattern{}, fmt.Errorf("%w: %q", ErrInvalidScheme, mp.scheme)
	}

	switch {
	case mp.host == "":
		if mp.scheme != "file" {
			return matchPattern{}, fmt.Errorf("%w: empty host", ErrInvalidHost)
		}
	case mp.host == "*":
	case strings.HasPrefix(mp.host, "*."):
		if len(mp.host) == 2 || strings.Contains(mp.host[2:], "*") {
			return matchPattern{}, fmt.Errorf("%w: %q", ErrInvalidHost, mp.host)
		}
	case strings.Contains(mp.host, "*"):
		return matchPattern{}, fmt.Errorf("%w: wildcard must be the whole host or a leading \"*.\": %q", ErrInvalidHost, mp.host)
	}

	if !strings.HasPrefix(mp.path, "/") {
		return matchPattern{}, fmt.Errorf("%w: path must start with \"/\"", ErrInvalidPath)
	}

	return mp, nil
}

// Validate is the syntax checker used when a script declares @match. It
// accepts "*", "<all_urls>" and strict match patterns, and never compiles
// anything.
func Validate(pattern string) error {
	switch pattern {
	case "":
		return ErrNotMatchPattern
	case anyPattern, allURLsPattern:
		return nil
	}
	_, err := parseMatchPattern(pattern)
	return err
}
