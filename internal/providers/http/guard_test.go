package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

var errInternal = errors.New("internal address")

func denyLoopback(host string, addr netip.Addr) error {
	if addr.IsLoopback() || addr.IsPrivate() {
		return fmt.Errorf("%w: %s -> %s", errInternal, host, addr)
	}
	return nil
}

func namedServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32, int) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, srv.Listener.Addr().(*net.TCPAddr).Port
}

func TestGuardedClientBlocksNamesResolvingInternally(t *testing.T) {
	_, hits, port := namedServer(t, "internal-secret")
	resolver := staticResolver{
		"intranet.test": {netip.MustParseAddr("127.0.0.1")},
		"mixed.test":    {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("127.0.0.1")},
	}
	c := NewClient(Config{AddressCheck: denyLoopback, Resolver: resolver})

	for _, host := range []string{"intranet.test", "mixed.test", "127.0.0.1"} {
		_, err := c.Do(context.Background(), Request{URL: fmt.Sprintf("http://%s:%d/", host, port)})
		require.Error(t, err, host)
		assert.ErrorIs(t, err, ErrAddressBlocked, host)
		assert.ErrorIs(t, err, errInternal, host)
	}
	assert.Zero(t, hits.Load())
}

func TestGuardedClientHonoursHostGrant(t *testing.T) {
	_, hits, port := namedServer(t, "internal-secret")
	resolver := staticResolver{"intranet.test": {netip.MustParseAddr("127.0.0.1")}}
	c := NewClient(Config{AddressCheck: denyLoopback, Resolver: resolver})
	url := fmt.Sprintf("http://intranet.test:%d/", port)

	ctx := WithHostGrant(context.Background(), func(host string) bool { return host == "intranet.test" })
	resp, err := c.Do(ctx, Request{URL: url})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "internal-secret", string(body))

	// The granted connection is not pooled for callers without the grant.
	_, err = c.Do(context.Background(), Request{URL: url})
	assert.ErrorIs(t, err, ErrAddressBlocked)

	other := WithHostGrant(context.Background(), func(host string) bool { return host == "elsewhere.test" })
	_, err = c.Do(other, Request{URL: url})
	assert.ErrorIs(t, err, ErrAddressBlocked)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGuardedClientAllowsApprovedAddresses(t *testing.T) {
	_, _, port := namedServer(t, "ok")
	resolver := staticResolver{"public.test": {netip.MustParseAddr("127.0.0.1")}}
	allowAll := func(string, netip.Addr) error { return nil }
	c := NewClient(Config{AddressCheck: allowAll, Resolver: resolver})

	resp, err := c.Do(context.Background(), Request{URL: fmt.Sprintf("http://public.test:%d/", port)})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = c.Do(context.Background(), Request{URL: fmt.Sprintf("http://unknown.test:%d/", port)})
	var dnsErr *net.DNSError
	assert.ErrorAs(t, err, &dnsErr)
}

func TestGuardedClientChecksRedirectHops(t *testing.T) {
	_, hits, port := namedServer(t, "internal-secret")
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, fmt.Sprintf("http://intranet.test:%d/", port), http.StatusFound)
	}))
	defer front.Close()
	frontPort := front.Listener.Addr().(*net.TCPAddr).Port

	resolver := staticResolver{
		"front.test":    {netip.MustParseAddr("127.0.0.1")},
		"intranet.test": {netip.MustParseAddr("127.0.0.1")},
	}
	// Only the first hop is granted.
	ctx := WithHostGrant(context.Background(), func(host string) bool { return host == "front.test" })

	c := NewClient(Config{AddressCheck: denyLoopback, Resolver: resolver})
	_, err := c.Do(ctx, Request{URL: fmt.Sprintf("http://front.test:%d/", frontPort)})
	assert.ErrorIs(t, err, ErrAddressBlocked)
	assert.Zero(t, hits.Load())
}
