package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultDialTimeout bounds connection setup on a guarded transport.
const DefaultDialTimeout = 30 * time.Second

// ErrAddressBlocked wraps the AddressCheck error that refused a dial.
var ErrAddressBlocked = errors.New("address blocked")

// AddressCheck approves an address host resolved to before it is dialed.
type AddressCheck func(host string, addr netip.Addr) error

// Resolver looks up host addresses. *net.Resolver implements it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// HostGrant reports whether the caller was explicitly allowed to reach
// host, bypassing the AddressCheck.
type HostGrant func(host string) bool

type hostGrantKey struct{}

// WithHostGrant attaches grant to ctx.
func WithHostGrant(ctx context.Context, grant HostGrant) context.Context {
	return context.WithValue(ctx, hostGrantKey{}, grant)
}

func hostGrantFrom(ctx context.Context) HostGrant {
	grant, _ := ctx.Value(hostGrantKey{}).(HostGrant)
	return grant
}

func granted(ctx context.Context, host string) bool {
	grant := hostGrantFrom(ctx)
	return grant != nil && grant(host)
}

// guardedDialer resolves the target once, checks every address and dials
// only the checked addresses, so a second lookup cannot rebind the name.
type guardedDialer struct {
	dialer   *net.Dialer
	resolver Resolver
	check    AddressCheck
}

func (d *guardedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	addrs, err := d.lookup(ctx, host)
	if err != nil {
		return nil, err
	}

	if !granted(ctx, host) {
		for _, addr := range addrs {
			if err := d.check(host, addr); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrAddressBlocked, err)
			}
		}
	}

	var firstErr error
	for _, addr := range addrs {
		conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(addr.String(), port))
		if err == nil {
			return conn, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (d *guardedDialer) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, err := d.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}
	return addrs, nil
}

// guardedTransport sends requests whose host the caller was granted over a
// transport without keep-alives, so a connection opened on a grant is never
// pooled for a caller without one.
type guardedTransport struct {
	shared  *http.Transport
	granted *http.Transport
}

// NewGuardedTransport returns a pooled transport that only dials addresses
// check approves. Proxies are disabled so check always sees the real target.
// resolver defaults to net.DefaultResolver.
func NewGuardedTransport(check AddressCheck, resolver Resolver, dialTimeout time.Duration) http.RoundTripper {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	dialer := &guardedDialer{
		dialer:   &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
		resolver: resolver,
		check:    check,
	}

	shared := cleanhttp.DefaultPooledTransport()
	shared.Proxy = nil
	shared.DialContext = dialer.DialContext

	once := shared.Clone()
	once.DisableKeepAlives = true

	return &guardedTransport{shared: shared, granted: once}
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if granted(req.Context(), req.URL.Hostname()) {
		return t.granted.RoundTrip(req)
	}
	return t.shared.RoundTrip(req)
}

// CloseIdleConnections closes idle connections of both transports.
func (t *guardedTransport) CloseIdleConnections() {
	t.shared.CloseIdleConnections()
	t.granted.CloseIdleConnections()
}
