package integrity

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MaxScriptSize is the size above which a script is flagged.
const MaxScriptSize = 10 << 20

type riskyPattern struct {
	re      *regexp.Regexp
	message string
}

var riskyPatterns = []riskyPattern{
	{regexp.MustCompile(`\beval\s*\(`), "use of eval() detected"},
	{regexp.MustCompile(`\bFunction\s*\(`), "use of the Function() constructor detected"},
	{regexp.MustCompile(`document\.write\s*\(`), "use of document.write() detected"},
	{regexp.MustCompile(`innerHTML\s*=[^=]`), "direct innerHTML assignment detected"},
	{regexp.MustCompile(`outerHTML\s*=[^=]`), "direct outerHTML assignment detected"},
	{regexp.MustCompile(`setTimeout\s*\(\s*["'` + "`" + `]`), "string-based setTimeout detected"},
	{regexp.MustCompile(`setInterval\s*\(\s*["'` + "`" + `]`), "string-based setInterval detected"},
}

var embeddedURL = regexp.MustCompile(`https?://[^\s"'` + "`" + `<>)]+`)

// urlShorteners hide the real destination of a link.
var urlShorteners = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"short.link":  true,
	"t.co":        true,
	"goo.gl":      true,
	"is.gd":       true,
	"ow.ly":       true,
}

// CheckSecurity returns warnings about risky constructs in code.
func CheckSecurity(code string) []string {
	var warnings []string

	for _, p := range riskyPatterns {
		if p.re.MatchString(code) {
			warnings = append(warnings, p.message)
		}
	}

	if len(code) > MaxScriptSize {
		warnings = append(warnings, fmt.Sprintf("script is very large (%d bytes)", len(code)))
	}

	seen := make(map[string]bool)
	for _, raw := range embeddedURL.FindAllString(code, -1) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if urlShorteners[host] && !seen[raw] {
			seen[raw] = true
			warnings = append(warnings, "URL shortener detected: "+raw)
		}
	}

	return warnings
}
