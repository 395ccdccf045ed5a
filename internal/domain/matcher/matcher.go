package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

const (
	anyPattern     = "*"
	allURLsPattern = "<all_urls>"
)

// RegexpTimeout bounds a single evaluation of a "/regex/" pattern.
var RegexpTimeout = 50 * time.Millisecond

// Dialect identifies how a pattern was compiled.
type Dialect int

const (
	DialectInvalid Dialect = iota
	DialectAny
	DialectAllURLs
	DialectRegexp
	DialectMatchPattern
	DialectGlob
)

// String returns the string representation of the dialect
func (d Dialect) String() string {
	switch d {
	case DialectAny:
		return "any"
	case DialectAllURLs:
		return "all_urls"
	case DialectRegexp:
		return "regexp"
	case DialectMatchPattern:
		return "match_pattern"
	case DialectGlob:
		return "glob"
	default:
		return "invalid"
	}
}

var allURLsRe = regexp.MustCompile(`^(https?|file|ftp)://`)

// hostChars is what a wildcard host label may contain. Excluding the URL
// delimiters keeps "https://evil.com?.example.com/" from passing as a
// subdomain of example.com.
const hostChars = `[^/?#@:]+`

// Matcher is a compiled URL pattern. The zero value never matches.
type Matcher struct {
	pattern string
	dialect Dialect

	url  *regexp.Regexp  // match pattern, glob
	host *regexp.Regexp  // host part of a match pattern or glob
	js   *regexp2.Regexp // regexp dialect
}

// Compile compiles pattern. It never fails: a pattern that cannot be compiled
// yields a Matcher that always returns false.
func Compile(pattern string) *Matcher {
	m, err := compile(pattern)
	if err != nil {
		zap.L().Warn("URL pattern cannot be compiled, it will never match",
			zap.String("pattern", pattern),
			zap.Error(err),
		)
		return &Matcher{pattern: pattern, dialect: DialectInvalid}
	}
	return m
}

func compile(pattern string) (*Matcher, error) {
	if pattern == anyPattern {
		return &Matcher{pattern: pattern, dialect: DialectAny}, nil
	}
	if pattern == allURLsPattern {
		return &Matcher{pattern: pattern, dialect: DialectAllURLs, url: allURLsRe}, nil
	}

	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		js, err := regexp2.Compile(pattern[1:len(pattern)-1], regexp2.ECMAScript)
		if err != nil {
			return nil, fmt.Errorf("invalid regular expression: %w", err)
		}
		js.MatchTimeout = RegexpTimeout
		return &Matcher{pattern: pattern, dialect: DialectRegexp, js: js}, nil
	}

	if strings.Contains(pattern, "://") {
		if mp, err := parseMatchPattern(pattern); err == nil {
			return compileMatchPattern(pattern, mp)
		}
	}

	return compileGlob(pattern)
}

func compileMatchPattern(pattern string, mp matchPattern) (*Matcher, error) {
	scheme := Escape(mp.scheme)
	if mp.scheme == "*" {
		scheme = "https?"
	}

	name, explicitPort := splitPort(mp.host)
	host := matchPatternHost(name)

	port := `(?::\d+)?`
	switch {
	case mp.host == "":
		port = ""
	case explicitPort != "":
		port = ":" + explicitPort
	}

	urlRe, err := regexp.Compile("^" + scheme + "://" + host + port + Wildcard(mp.path) + "$")
	if err != nil {
		return nil, err
	}
	// Hosts are checked without their port, and IPv6 literals without brackets.
	hostRe, err := regexp.Compile("^" + matchPatternHost(unbracket(name)) + "$")
	if err != nil {
		return nil, err
	}

	return &Matcher{pattern: pattern, dialect: DialectMatchPattern, url: urlRe, host: hostRe}, nil
}

func matchPatternHost(name string) string {
	switch {
	case name == "*":
		return hostChars
	case strings.HasPrefix(name, "*."):
		return hostChars + `\.` + Escape(name[2:])
	default:
		return Escape(name)
	}
}

// splitPort separates a trailing ":port" from an authority. IPv6 literals
// keep their brackets and only lose a port written after them.
func splitPort(authority string) (host, port string) {
	i := strings.LastIndexByte(authority, ':')
	if i < 0 || strings.LastIndexByte(authority, ']') > i {
		return authority, ""
	}
	digits := authority[i+1:]
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return authority, ""
	}
	if strings.Contains(authority[:i], ":") && !strings.HasPrefix(authority, "[") {
		// Bare IPv6 literal, not host:port.
		return authority, ""
	}
	return authority[:i], digits
}

func unbracket(host string) string {
	if len(host) > 2 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}

func compileGlob(pattern string) (*Matcher, error) {
	urlRe, err := regexp.Compile("^" + Wildcard(pattern) + "$")
	if err != nil {
		return nil, err
	}

	// Globs double as @connect host patterns ("example.com", "*.example.com").
	// For URL globs only the authority part is used for host checks.
	hostGlob := pattern
	if _, rest, ok := strings.Cut(pattern, "://"); ok {
		hostGlob, _, _ = strings.Cut(rest, "/")
	}
	hostGlob, _ = splitPort(hostGlob)
	hostGlob = unbracket(hostGlob)
	hostRe, err := regexp.Compile("^" + Wildcard(hostGlob) + "$")
	if err != nil {
		return nil, err
	}

	return &Matcher{pattern: pattern, dialect: DialectGlob, url: urlRe, host: hostRe}, nil
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// Dialect returns how the pattern was compiled.
func (m *Matcher) Dialect() Dialect { return m.dialect }

// Test reports whether url matches the pattern.
func (m *Matcher) Test(url string) bool {
	switch m.dialect {
	case DialectAny:
		return true
	case DialectAllURLs, DialectMatchPattern, DialectGlob:
		return m.url.MatchString(url)
	case DialectRegexp:
		return m.testJS(url)
	default:
		return false
	}
}

// TestHost reports whether the pattern covers host, ignoring scheme and path.
// It is what @connect checks use.
func (m *Matcher) TestHost(host string) bool {
	if host == "" {
		return false
	}
	switch m.dialect {
	case DialectAny, DialectAllURLs:
		return true
	case DialectMatchPattern, DialectGlob:
		return m.host.MatchString(host)
	case DialectRegexp:
		return m.testJS("https://"+host+"/") || m.testJS("http://"+host+"/")
	default:
		return false
	}
}

func (m *Matcher) testJS(url string) bool {
	ok, err := m.js.MatchString(url)
	if err != nil {
		zap.L().Warn("URL pattern evaluation failed",
			zap.String("pattern", m.pattern),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// Set is an ordered list of compiled patterns.
type Set []*Matcher

// CompileAll compiles every pattern in order.
func CompileAll(patterns []string) Set {
	set := make(Set, 0, len(patterns))
	for _, p := range patterns {
		set = append(set, Compile(p))
	}
	return set
}

// Test reports whether any pattern matches url. An empty set matches nothing.
func (s Set) Test(url string) bool {
	for _, m := range s {
		if m.Test(url) {
			return true
		}
	}
	return false
}

// TestHost reports whether any pattern covers host.
func (s Set) TestHost(host string) bool {
	for _, m := range s {
		if m.TestHost(host) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any of patterns matches url. What an empty list
// means is up to the caller.
func MatchesAny(patterns []string, url string) bool {
	return CompileAll(patterns).Test(url)
}
