package policy

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Baseline is the built-in network deny-list. Hosts can replace any list
// with LoadBaseline.
type Baseline struct {
	// InternalHosts are literal hostnames that are always internal.
	InternalHosts []string `toml:"internal_hosts"`
	// PrivateRanges are loopback, private and link-local networks.
	PrivateRanges []string `toml:"private_ranges"`
	// SuspiciousTLDs need an explicit user permission.
	SuspiciousTLDs []string `toml:"suspicious_tlds"`
}

// DefaultBaseline returns the built-in deny-list.
func DefaultBaseline() Baseline {
	return Baseline{
		InternalHosts: []string{"localhost", "0.0.0.0"},
		PrivateRanges: []string{
			"127.0.0.0/8",
			"::1/128",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"169.254.0.0/16",
			"fe80::/10",
			"fc00::/7",
		},
		SuspiciousTLDs: []string{
			"tk", "ml", "ga", "cf", "gq",
			"zip", "mov", "top", "click", "country", "kim", "loan", "work",
		},
	}
}

// LoadBaseline reads a TOML file over the default baseline. Lists missing
// from the file keep their defaults; a list present in the file replaces
// the default one.
func LoadBaseline(path string) (Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Baseline{}, fmt.Errorf("failed to read policy baseline: %w", err)
	}
	return ParseBaseline(data)
}

// ParseBaseline decodes TOML baseline content over the defaults.
func ParseBaseline(data []byte) (Baseline, error) {
	var override Baseline
	if err := toml.Unmarshal(data, &override); err != nil {
		return Baseline{}, fmt.Errorf("failed to parse policy baseline: %w", err)
	}

	b := DefaultBaseline()
	if override.InternalHosts != nil {
		b.InternalHosts = override.InternalHosts
	}
	if override.PrivateRanges != nil {
		b.PrivateRanges = override.PrivateRanges
	}
	if override.SuspiciousTLDs != nil {
		b.SuspiciousTLDs = override.SuspiciousTLDs
	}

	if _, err := b.compile(); err != nil {
		return Baseline{}, err
	}
	return b, nil
}

type compiledBaseline struct {
	hosts    map[string]bool
	prefixes []netip.Prefix
	tlds     map[string]bool
}

func (b Baseline) compile() (*compiledBaseline, error) {
	c := &compiledBaseline{
		hosts: make(map[string]bool, len(b.InternalHosts)),
		tlds:  make(map[string]bool, len(b.SuspiciousTLDs)),
	}
	for _, h := range b.InternalHosts {
		c.hosts[normalizeHost(h)] = true
	}
	for _, r := range b.PrivateRanges {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("invalid private range %q: %w", r, err)
		}
		c.prefixes = append(c.prefixes, prefix.Masked())
	}
	for _, tld := range b.SuspiciousTLDs {
		c.tlds[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tld), "."))] = true
	}
	return c, nil
}

// internal reports whether host is on the hard deny-list.
func (c *compiledBaseline) internal(host string, addr netip.Addr, isIP bool) bool {
	if c.hosts[host] || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if !isIP {
		return false
	}
	if addr.IsLoopback() || addr.IsUnspecified() {
		return true
	}
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (c *compiledBaseline) suspicious(host string) bool {
	i := strings.LastIndexByte(host, '.')
	if i < 0 {
		return false
	}
	return c.tlds[host[i+1:]]
}
