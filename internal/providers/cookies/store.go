package cookies

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

var (
	ErrInvalidURL     = errors.New("cookie url must be http or https with a host")
	ErrMissingName    = errors.New("cookie name required")
	ErrDomainMismatch = errors.New("cookie domain does not match url host")
	ErrPublicSuffix   = errors.New("cookie domain is a public suffix")
	ErrInsecure       = errors.New("secure cookie cannot be set over http")
)

// SameSite values as reported to scripts.
const (
	SameSiteUnspecified   = "unspecified"
	SameSiteNoRestriction = "no_restriction"
	SameSiteLax           = "lax"
	SameSiteStrict        = "strict"
)

// Cookie is a stored cookie.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	ExpirationDate float64 `json:"expirationDate,omitempty"` // unix seconds
	Session        bool    `json:"session"`
	HostOnly       bool    `json:"hostOnly"`
	SameSite       string  `json:"sameSite"`

	created time.Time
	expires time.Time
}

// SetDetails describes a cookie to store. URL decides the default domain
// and path and is what the cookie must be valid for.
type SetDetails struct {
	URL            string  `json:"url" validate:"required,url"`
	Name           string  `json:"name" validate:"required"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain,omitempty"`
	Path           string  `json:"path,omitempty"`
	Secure         bool    `json:"secure,omitempty"`
	HTTPOnly       bool    `json:"httpOnly,omitempty"`
	ExpirationDate float64 `json:"expirationDate,omitempty"`
	SameSite       string  `json:"sameSite,omitempty" validate:"omitempty,oneof=unspecified no_restriction lax strict"`
}

type key struct {
	domain string
	path   string
	name   string
}

// Store is a concurrency-safe cookie store.
type Store struct {
	mu      sync.Mutex
	cookies map[key]*Cookie
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		cookies: make(map[key]*Cookie),
		now:     time.Now,
	}
}

// List returns the cookies that would be sent to rawURL, longest path
// first. A non-empty name filters by name.
func (s *Store) List(rawURL, name string) ([]Cookie, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	host := canonicalHost(u)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	var out []*Cookie
	for _, c := range s.cookies {
		if name != "" && c.Name != name {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !domainMatch(c, host) || !pathMatch(path, c.Path) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) > len(out[j].Path)
		}
		return out[i].created.Before(out[j].created)
	})

	cookies := make([]Cookie, len(out))
	for i, c := range out {
		cookies[i] = *c
	}
	return cookies, nil
}

// Set stores a cookie, replacing one with the same domain, path and name.
// An expiration date in the past deletes the cookie.
func (s *Store) Set(d SetDetails) (Cookie, error) {
	u, err := parseURL(d.URL)
	if err != nil {
		return Cookie{}, err
	}
	if d.Name == "" {
		return Cookie{}, ErrMissingName
	}
	if d.Secure && u.Scheme != "https" {
		return Cookie{}, ErrInsecure
	}

	host := canonicalHost(u)
	domain, hostOnly, err := cookieDomain(host, d.Domain)
	if err != nil {
		return Cookie{}, err
	}

	path := d.Path
	if path == "" || !strings.HasPrefix(path, "/") {
		path = defaultPath(u.EscapedPath())
	}

	sameSite := d.SameSite
	if sameSite == "" {
		sameSite = SameSiteUnspecified
	}

	now := s.now()
	c := &Cookie{
		Name:     d.Name,
		Value:    d.Value,
		Domain:   domain,
		Path:     path,
		Secure:   d.Secure,
		HTTPOnly: d.HTTPOnly,
		Session:  d.ExpirationDate == 0,
		HostOnly: hostOnly,
		SameSite: sameSite,
		created:  now,
	}
	if !c.Session {
		c.ExpirationDate = d.ExpirationDate
		c.expires = time.Unix(0, int64(d.ExpirationDate*float64(time.Second)))
	}

	k := key{domain: domain, path: path, name: d.Name}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.cookies[k]; ok {
		c.created = old.created
	}
	if !c.Session && !c.expires.After(now) {
		delete(s.cookies, k)
		return *c, nil
	}
	s.cookies[k] = c
	return *c, nil
}

// Delete removes every cookie named name that would be sent to rawURL. It
// returns how many were removed.
func (s *Store) Delete(rawURL, name string) (int, error) {
	if name == "" {
		return 0, ErrMissingName
	}
	u, err := parseURL(rawURL)
	if err != nil {
		return 0, err
	}
	host := canonicalHost(u)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, c := range s.cookies {
		if c.Name == name && domainMatch(c, host) && pathMatch(path, c.Path) {
			delete(s.cookies, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of unexpired cookies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	return len(s.cookies)
}

func (s *Store) evictLocked() {
	now := s.now()
	for k, c := range s.cookies {
		if !c.Session && !c.expires.After(now) {
			delete(s.cookies, k)
		}
	}
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

func canonicalHost(u *url.URL) string {
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// cookieDomain resolves the Domain attribute against the request host.
func cookieDomain(host, attr string) (domain string, hostOnly bool, err error) {
	attr = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(attr), "."), ".")
	if attr == "" || attr == host {
		return host, true, nil
	}
	if net.ParseIP(host) != nil {
		return "", false, fmt.Errorf("%w: %q for IP host %q", ErrDomainMismatch, attr, host)
	}
	if !strings.HasSuffix(host, "."+attr) {
		return "", false, fmt.Errorf("%w: %q for %q", ErrDomainMismatch, attr, host)
	}
	if ps, _ := publicsuffix.PublicSuffix(attr); ps == attr {
		return "", false, fmt.Errorf("%w: %q", ErrPublicSuffix, attr)
	}
	return attr, false, nil
}

func domainMatch(c *Cookie, host string) bool {
	if c.HostOnly {
		return host == c.Domain
	}
	return host == c.Domain || strings.HasSuffix(host, "."+c.Domain)
}

// pathMatch implements RFC 6265 section 5.1.4.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

// defaultPath implements RFC 6265 section 5.1.4 default-path.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
