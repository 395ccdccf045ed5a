package metadata

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/scriptgate/internal/domain/matcher"
)

const (
	blockStart = "==UserScript=="
	blockEnd   = "==/UserScript=="
	bom        = "\ufeff"
)

// directiveLine matches "// @key[:locale] value".
var directiveLine = regexp.MustCompile(`^//\s*@([\w.-]+)(?::([\w-]+))?(?:\s+(.*))?$`)

// resourceValue matches "name url".
var resourceValue = regexp.MustCompile(`^(\S+)\s+(\S.*)$`)

// dependencySchemes are the protocols @require and @resource may use.
var dependencySchemes = map[string]bool{
	"https": true,
	"http":  true,
	"data":  true,
}

// Parser parses directive blocks using a locale preference.
type Parser struct {
	locales LocaleProvider
}

// NewParser creates a parser. A nil provider means no locale preference,
// so only unsuffixed variants of localized keys are used.
func NewParser(locales LocaleProvider) *Parser {
	if locales == nil {
		locales = StaticLocales(nil)
	}
	return &Parser{locales: locales}
}

// Parse parses source with the given preferred locales.
func Parse(source string, locales ...string) (*Result, error) {
	return NewParser(StaticLocales(locales)).Parse(source)
}

// Parse extracts and validates the directive block of source. The same
// source and locale preference always produce an identical Result.
func (p *Parser) Parse(source string) (*Result, error) {
	lines, err := extractBlock(strings.TrimPrefix(source, bom))
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	for _, line := range lines {
		parts := directiveLine.FindStringSubmatch(line)
		if parts == nil {
			continue
		}
		b.apply(parts[1], parts[2], strings.TrimSpace(parts[3]))
	}

	return b.finish(p.locales.PreferredLocales())
}

// extractBlock returns the trimmed lines between the first start sentinel
// and the end sentinel that follows it.
func extractBlock(source string) ([]string, error) {
	var (
		lines   []string
		inBlock bool
	)
	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		marker := strings.TrimSpace(strings.TrimPrefix(line, "//"))
		switch {
		case !inBlock && strings.HasPrefix(line, "//") && marker == blockStart:
			inBlock = true
		case inBlock && strings.HasPrefix(line, "//") && marker == blockEnd:
			return lines, nil
		case inBlock:
			lines = append(lines, line)
		}
	}
	return nil, ErrMissingBlock
}

type builder struct {
	meta     ScriptMetadata
	warnings []Warning

	name, description, author localized

	seen     map[string]bool
	grants   map[string]bool
	connects map[string]bool
	runAtSet bool
}

func newBuilder() *builder {
	return &builder{
		meta:     newMetadata(),
		seen:     make(map[string]bool),
		grants:   make(map[string]bool),
		connects: make(map[string]bool),
	}
}

func (b *builder) apply(key, locale, value string) {
	if key == "noframes" {
		b.meta.NoFrames = true
		return
	}
	if value == "" {
		return
	}

	// Only name, description and author are localized. Suffixes on other
	// keys are ignored.
	switch key {
	case "name":
		b.name.add(locale, value)
	case "description":
		b.description.add(locale, value)
	case "author":
		b.author.add(locale, value)

	case "namespace":
		b.first(key, &b.meta.Namespace, value)
	case "version":
		b.first(key, &b.meta.Version, value)
	case "updateURL":
		b.first(key, &b.meta.UpdateURL, value)
	case "downloadURL":
		b.first(key, &b.meta.DownloadURL, value)
	case "homepageURL", "homepage", "website":
		b.first("homepageURL", &b.meta.HomepageURL, value)
	case "icon", "iconURL":
		b.first("icon", &b.meta.Icon, value)

	case "match":
		if err := matcher.Validate(value); err != nil {
			b.warn(WarningInvalidPattern, key, value, err.Error())
			return
		}
		b.meta.Matches = append(b.meta.Matches, value)
	case "exclude":
		b.meta.Excludes = append(b.meta.Excludes, value)
	case "include":
		b.meta.Includes = append(b.meta.Includes, value)

	case "grant":
		if !b.grants[value] {
			b.grants[value] = true
			b.meta.Grants = append(b.meta.Grants, value)
		}
	case "connect":
		if !b.connects[value] {
			b.connects[value] = true
			b.meta.Connects = append(b.meta.Connects, value)
		}

	case "require":
		if err := checkDependencyURL(value); err != nil {
			b.warn(WarningInvalidDependencyURL, key, value, err.Error())
			return
		}
		b.meta.Requires = append(b.meta.Requires, value)
	case "resource":
		b.addResource(value)

	case "run-at":
		if b.runAtSet {
			return
		}
		if runAt := RunAt(strings.ReplaceAll(value, "-", "_")); runAt.Valid() {
			b.meta.RunAt = runAt
			b.runAtSet = true
		}
	}
}

// first assigns value to dst on the first occurrence of key.
func (b *builder) first(key string, dst *string, value string) {
	if b.seen[key] {
		return
	}
	b.seen[key] = true
	*dst = value
}

func (b *builder) addResource(value string) {
	parts := resourceValue.FindStringSubmatch(value)
	if parts == nil {
		b.warn(WarningInvalidDependencyURL, "resource", value, "expected \"name url\"")
		return
	}
	res := Resource{Name: parts[1], URL: strings.TrimSpace(parts[2])}
	if err := checkDependencyURL(res.URL); err != nil {
		b.warn(WarningInvalidDependencyURL, "resource", value, err.Error())
		return
	}

	for i := range b.meta.Resources {
		if b.meta.Resources[i].Name == res.Name {
			b.meta.Resources[i] = res
			return
		}
	}
	b.meta.Resources = append(b.meta.Resources, res)
}

func (b *builder) warn(kind WarningKind, key, value, msg string) {
	b.warnings = append(b.warnings, Warning{Kind: kind, Key: key, Value: value, Message: msg})
}

func (b *builder) finish(locales []string) (*Result, error) {
	b.meta.Name = b.name.resolve(locales)
	b.meta.Description = b.description.resolve(locales)
	b.meta.Author = b.author.resolve(locales)

	if b.meta.Name == "" {
		return nil, ErrMissingName
	}

	if len(b.meta.Grants) > 1 && b.grants[GrantNone] {
		grants := make([]string, 0, len(b.meta.Grants)-1)
		for _, g := range b.meta.Grants {
			if g != GrantNone {
				grants = append(grants, g)
			}
		}
		b.meta.Grants = grants
	}

	return &Result{Metadata: b.meta, Warnings: b.warnings}, nil
}

func checkDependencyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparsable URL: %w", err)
	}
	if !dependencySchemes[u.Scheme] {
		return fmt.Errorf("protocol %q is not allowed", u.Scheme)
	}
	if u.Scheme != "data" && u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
