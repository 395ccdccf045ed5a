package policy

import (
	"errors"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

var (
	errUnparsableURL = errors.New("unparsable URL")
	errSchemeDenied  = errors.New("only http and https targets are allowed")
	errNoHost        = errors.New("URL has no host")
)

// target is a request URL reduced to what policy needs.
type target struct {
	host string // lowercase, no trailing dot, canonical for IP literals
	addr netip.Addr
	isIP bool
}

func parseTarget(raw string) (target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, errUnparsableURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return target{}, errSchemeDenied
	}

	host := normalizeHost(u.Hostname())
	if host == "" {
		return target{}, errNoHost
	}

	if addr, ok := parseIP(host); ok {
		return target{host: addr.String(), addr: addr, isIP: true}, nil
	}
	return target{host: host}, nil
}

// Host returns the canonical host of a request URL, the key user
// permissions are recorded under. It returns "" when url has no usable host.
func Host(raw string) string {
	t, err := parseTarget(raw)
	if err != nil {
		return ""
	}
	return t.host
}

// NormalizeHost canonicalises a bare host name or IP literal the same way
// request targets are keyed. IPv6 literals may be bracketed. It returns ""
// when host is not a usable host.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if len(host) > 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	if addr, ok := parseIP(normalizeHost(host)); ok {
		return addr.String()
	}
	host = normalizeHost(host)
	if host == "" || strings.ContainsAny(host, ":/?#@[]\\% \t") {
		return ""
	}
	return host
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// parseIP parses IPv6 and IPv4 literals, including the legacy numeric IPv4
// forms resolvers still accept ("2130706433", "0x7f.1", "0177.0.0.1").
// IPv4-mapped IPv6 addresses are unmapped and zones are dropped.
func parseIP(host string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.WithZone("").Unmap(), true
	}
	if addr, ok := parseLegacyIPv4(host); ok {
		return addr, true
	}
	return netip.Addr{}, false
}

func parseLegacyIPv4(host string) (netip.Addr, bool) {
	parts := strings.Split(host, ".")
	if len(parts) > 4 {
		return netip.Addr{}, false
	}

	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, ok := parseIPv4Part(p)
		if !ok {
			return netip.Addr{}, false
		}
		nums[i] = n
	}

	// All but the last part are single bytes; the last fills what remains.
	var v uint64
	for _, n := range nums[:len(nums)-1] {
		if n > 0xff {
			return netip.Addr{}, false
		}
		v = v<<8 | n
	}
	rest := 4 - (len(nums) - 1)
	last := nums[len(nums)-1]
	if last >= 1<<(8*rest) {
		return netip.Addr{}, false
	}
	v = v<<(8*rest) | last

	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true
}

func parseIPv4Part(p string) (uint64, bool) {
	if p == "" {
		return 0, false
	}
	base := 10
	switch {
	case strings.HasPrefix(p, "0x"):
		p, base = p[2:], 16
		if p == "" {
			return 0, true
		}
	case len(p) > 1 && p[0] == '0':
		p, base = p[1:], 8
	}
	n, err := strconv.ParseUint(p, base, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}
