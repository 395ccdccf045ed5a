package metadata

import (
	"strings"

	"golang.org/x/text/language"
)

// LocaleProvider supplies the user's preferred locales, most preferred first.
type LocaleProvider interface {
	PreferredLocales() []string
}

// StaticLocales is a fixed locale preference list.
type StaticLocales []string

// PreferredLocales implements LocaleProvider.
func (s StaticLocales) PreferredLocales() []string { return s }

// localized buffers every variant of a single-valued localized key.
type localized struct {
	def      string
	hasDef   bool
	variants []variant
}

type variant struct {
	locale string
	value  string
}

func (l *localized) add(locale, value string) {
	if locale == "" {
		if !l.hasDef {
			l.def, l.hasDef = value, true
		}
		return
	}
	l.variants = append(l.variants, variant{locale: locale, value: value})
}

// resolve picks the winning variant for the preferred locales. Ties within a
// rule go to the variant that appears first in the file.
func (l *localized) resolve(preferred []string) string {
	for _, want := range preferred {
		for _, v := range l.variants {
			if sameLocale(v.locale, want) {
				return v.value
			}
		}
	}
	for _, want := range preferred {
		base := primaryLanguage(want)
		if base == "" {
			continue
		}
		for _, v := range l.variants {
			if primaryLanguage(v.locale) == base {
				return v.value
			}
		}
	}
	if l.hasDef {
		return l.def
	}
	return ""
}

func sameLocale(a, b string) bool {
	return normalizeLocale(a) == normalizeLocale(b)
}

func normalizeLocale(tag string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
}

// primaryLanguage returns the base language subtag ("pt" for "pt-BR").
// Tags the language package cannot parse fall back to the text before the
// first separator.
func primaryLanguage(tag string) string {
	tag = normalizeLocale(tag)
	if tag == "" {
		return ""
	}
	if t, err := language.Parse(tag); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}
	head, _, _ := strings.Cut(tag, "-")
	return head
}
