package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/providers/cookies"
	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
	"github.com/GriffinCanCode/scriptgate/internal/providers/storage"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

const waitFor = 2 * time.Second

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	events []types.Event
}

func newFakeChannel(id string) *fakeChannel { return &fakeChannel{id: id} }

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(e types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *fakeChannel) Events() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// waitTerminal waits for the terminal event of correlationID and returns
// every event sent for it.
func (c *fakeChannel) waitTerminal(t *testing.T, correlationID string) []types.Event {
	t.Helper()
	var got []types.Event
	require.Eventually(t, func() bool {
		got = got[:0]
		for _, e := range c.Events() {
			if e.CorrelationID == correlationID {
				got = append(got, e)
			}
		}
		return len(got) > 0 && got[len(got)-1].Type.Terminal()
	}, waitFor, 5*time.Millisecond)
	return got
}

type fakeSource map[string]*scripts.UserScript

func (s fakeSource) Get(id string) (*scripts.UserScript, bool) {
	script, ok := s[id]
	return script, ok
}

type fakePermissions map[string]bool

func (f fakePermissions) GetPermission(scriptID, domain string) (bool, bool) {
	allow, ok := f[scriptID+"|"+domain]
	return allow, ok
}

// chunkBody hands out one chunk per Read, then blocks on more (if
// hold is set) until ctx is done.
type chunkBody struct {
	ctx    context.Context
	chunks [][]byte
	hold   bool
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if len(b.chunks) > 0 {
		n := copy(p, b.chunks[0])
		b.chunks = b.chunks[1:]
		return n, nil
	}
	if !b.hold {
		return 0, io.EOF
	}
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *chunkBody) Close() error { return nil }

type fakeFetcher struct {
	mu       sync.Mutex
	requests []httpx.Request
	chunks   [][]byte
	total    int64
	hold     bool
	header   http.Header
	started  chan struct{}
}

func (f *fakeFetcher) Do(ctx context.Context, req httpx.Request) (*httpx.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	chunks := append([][]byte(nil), f.chunks...)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}

	header := f.header
	if header == nil {
		header = http.Header{"Content-Type": {"text/plain; charset=utf-8"}}
	}
	return &httpx.Response{
		Status:        200,
		StatusText:    "OK",
		FinalURL:      req.URL,
		Header:        header,
		ContentLength: f.total,
		Body:          &chunkBody{ctx: ctx, chunks: chunks, hold: f.hold},
	}, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordedDenials struct {
	mu      sync.Mutex
	denials []policy.Denial
}

func (r *recordedDenials) OnDenial(d policy.Denial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, d)
}

func (r *recordedDenials) all() []policy.Denial {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]policy.Denial(nil), r.denials...)
}

type harness struct {
	broker  *Broker
	fetcher *fakeFetcher
	values  *storage.Memory
	denials *recordedDenials
	script  *scripts.UserScript
}

func newHarness(t *testing.T, grants []string, opts ...Option) *harness {
	t.Helper()

	engine, err := policy.NewEngine()
	require.NoError(t, err)

	script := &scripts.UserScript{
		ID:      "script-1",
		Enabled: true,
		Hash:    "abc",
		Metadata: metadata.ScriptMetadata{
			Name:    "Test Script",
			Version: "1.0",
			Matches: []string{"https://example.com/*"},
			Grants:  grants,
		},
	}

	h := &harness{
		fetcher: &fakeFetcher{total: -1},
		values:  storage.NewMemory(),
		denials: &recordedDenials{},
		script:  script,
	}

	all := append([]Option{
		WithFetcher(h.fetcher),
		WithValues(h.values),
		WithCookies(cookies.NewStore()),
		WithNotifier(notify.NewNotifier(zap.NewNop(), 10)),
		WithDenialHandler(h.denials),
	}, opts...)

	h.broker = New(engine, fakeSource{script.ID: script}, nil, DefaultConfig(), zap.NewNop(), all...)
	return h
}

func call(capability, correlationID string, params any) types.Invocation {
	raw, _ := json.Marshal(params)
	return types.Invocation{
		Capability:    capability,
		ScriptID:      "script-1",
		CorrelationID: correlationID,
		Params:        raw,
	}
}

func errorData(t *testing.T, e types.Event) types.ErrorData {
	t.Helper()
	require.Equal(t, types.EventError, e.Type)
	data, ok := e.Data.(types.ErrorData)
	require.True(t, ok, "unexpected payload %T", e.Data)
	return data
}

func TestInvokeMissingCapabilityIsDenied(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityGetValue})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": "https://example.com/"})))

	events := ch.Events()
	require.Len(t, events, 1)
	data := errorData(t, events[0])
	assert.Equal(t, types.ErrorPolicy, data.Kind)
	assert.Equal(t, string(policy.ReasonMissingCapability), data.Reason)
	assert.Equal(t, 0, h.broker.Pending())
	assert.Equal(t, 0, h.fetcher.calls())
	assert.Len(t, h.denials.all(), 1)
}

func TestInvokeConnectDenied(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": "https://other.org/data"})))

	events := ch.Events()
	require.Len(t, events, 1)
	data := errorData(t, events[0])
	assert.Equal(t, types.ErrorPolicy, data.Kind)
	assert.Equal(t, string(policy.ReasonConnectDenied), data.Reason)
	assert.Equal(t, 0, h.fetcher.calls())

	denials := h.denials.all()
	require.Len(t, denials, 1)
	assert.Equal(t, "https://other.org/data", denials[0].Target)
	assert.Equal(t, "Test Script", denials[0].ScriptName)
}

func TestInvokeRejectsMalformedInvocations(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})

	tests := []struct {
		name string
		inv  types.Invocation
	}{
		{"missing correlation id", call(policy.CapabilityInfo, "", nil)},
		{"unknown capability", call("GM_teleport", "1", nil)},
		{"bad params", call(policy.CapabilityFetch, "1", map[string]any{"method": "GET"})},
		{"unknown script", types.Invocation{Capability: policy.CapabilityInfo, ScriptID: "nope", CorrelationID: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel("c")
			require.NoError(t, h.broker.Invoke(ch, tt.inv))
			events := ch.Events()
			require.Len(t, events, 1)
			assert.Equal(t, types.ErrorInvalid, errorData(t, events[0]).Kind)
		})
	}

	assert.ErrorIs(t, h.broker.Invoke(nil, call(policy.CapabilityInfo, "1", nil)), ErrNilChannel)
}

func TestInvokeDisabledScript(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityGetValue})
	h.script.Enabled = false
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityInfo, "1", nil)))
	events := ch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrorInvalid, errorData(t, events[0]).Kind)
}

func TestFetchReportsProgressThenCompletes(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	h.fetcher.chunks = [][]byte{
		bytes.Repeat([]byte("a"), 10),
		bytes.Repeat([]byte("b"), 20),
		bytes.Repeat([]byte("c"), 30),
	}
	h.fetcher.total = 60
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "7", map[string]any{"url": "https://example.com/file"})))
	events := ch.waitTerminal(t, "7")

	require.Len(t, events, 4)
	assert.Equal(t, types.ProgressData{Loaded: 10, Total: 60, LengthComputable: true}, events[0].Data)
	assert.Equal(t, types.ProgressData{Loaded: 30, Total: 60, LengthComputable: true}, events[1].Data)
	assert.Equal(t, types.ProgressData{Loaded: 60, Total: 60, LengthComputable: true}, events[2].Data)

	require.Equal(t, types.EventCompleted, events[3].Type)
	result, ok := events[3].Data.(*FetchResult)
	require.True(t, ok)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, "https://example.com/file", result.FinalURL)
	assert.Len(t, result.Response, 60)
	assert.Empty(t, result.Encoding)
	assert.Contains(t, result.ResponseHeaders, "content-type: text/plain")
	assert.Equal(t, 0, h.broker.Pending())
}

func TestFetchUnknownLengthProgress(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	h.fetcher.chunks = [][]byte{[]byte("hello")}
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": "https://example.com/"})))
	events := ch.waitTerminal(t, "1")

	require.Len(t, events, 2)
	assert.Equal(t, types.ProgressData{Loaded: 5}, events[0].Data)
}

func TestFetchArrayBufferIsBase64(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	h.fetcher.chunks = [][]byte{{0x00, 0xff, 0x10}}
	h.fetcher.header = http.Header{"Content-Type": {"application/octet-stream"}}
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{
		"url":          "https://example.com/bin",
		"responseType": "arraybuffer",
	})))
	events := ch.waitTerminal(t, "1")

	result, ok := events[len(events)-1].Data.(*FetchResult)
	require.True(t, ok)
	assert.Equal(t, "base64", result.Encoding)
	assert.Equal(t, "AP8Q", result.Response)
}

func TestFetchAttachesCookiesOnlyWithCredentials(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch, policy.CapabilityCookie})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityCookie, "set", map[string]any{
		"action": "set", "url": "https://example.com/", "name": "sid", "value": "42",
	})))
	require.Equal(t, types.EventCompleted, ch.waitTerminal(t, "set")[0].Type)

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "plain", map[string]any{"url": "https://example.com/"})))
	ch.waitTerminal(t, "plain")
	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "creds", map[string]any{
		"url": "https://example.com/", "credentials": "include",
	})))
	ch.waitTerminal(t, "creds")
	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "anon", map[string]any{
		"url": "https://example.com/", "credentials": "include", "anonymous": true,
	})))
	ch.waitTerminal(t, "anon")

	h.fetcher.mu.Lock()
	defer h.fetcher.mu.Unlock()
	require.Len(t, h.fetcher.requests, 3)
	assert.Empty(t, h.fetcher.requests[0].Headers["Cookie"])
	assert.Equal(t, "sid=42", h.fetcher.requests[1].Headers["Cookie"])
	assert.Empty(t, h.fetcher.requests[2].Headers["Cookie"])
}

func startHeldFetch(t *testing.T, h *harness, ch *fakeChannel, correlationID string, params map[string]any) {
	t.Helper()
	h.fetcher.hold = true
	h.fetcher.started = make(chan struct{}, 1)
	if params == nil {
		params = map[string]any{}
	}
	params["url"] = "https://example.com/slow"
	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, correlationID, params)))
	select {
	case <-h.fetcher.started:
	case <-time.After(waitFor):
		t.Fatal("fetch never started")
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")
	startHeldFetch(t, h, ch, "1", nil)
	require.Equal(t, 1, h.broker.Pending())

	assert.True(t, h.broker.Abort(ch, "1"))
	assert.False(t, h.broker.Abort(ch, "1"))
	assert.Equal(t, 0, h.broker.Pending())

	events := ch.waitTerminal(t, "1")
	assert.Equal(t, types.ErrorAborted, errorData(t, events[len(events)-1]).Kind)

	assert.Never(t, func() bool { return len(ch.Events()) != len(events) }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAbortAfterCompletionIsNoop(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": "https://example.com/"})))
	events := ch.waitTerminal(t, "1")
	require.Equal(t, types.EventCompleted, events[len(events)-1].Type)

	assert.False(t, h.broker.Abort(ch, "1"))
	assert.False(t, h.broker.Abort(ch, "unknown"))
	assert.Len(t, ch.Events(), len(events))
}

func TestAbortIsScopedToChannel(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")
	other := newFakeChannel("c2")
	startHeldFetch(t, h, ch, "1", nil)

	assert.False(t, h.broker.Abort(other, "1"))
	assert.Equal(t, 1, h.broker.Pending())
	assert.True(t, h.broker.Abort(ch, "1"))
}

func TestDisconnectEmitsNothing(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch, policy.CapabilityRegisterMenu})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityRegisterMenu, "m", map[string]any{"caption": "Run"})))
	require.Len(t, h.broker.Menus("c1"), 1)

	startHeldFetch(t, h, ch, "1", nil)
	before := len(ch.Events())

	h.broker.Disconnect(ch)
	assert.Equal(t, 0, h.broker.Pending())
	assert.Empty(t, h.broker.Menus("c1"))
	assert.Never(t, func() bool { return len(ch.Events()) != before }, 100*time.Millisecond, 5*time.Millisecond)

	assert.False(t, h.broker.Abort(ch, "1"))
}

func TestFetchTimeout(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")
	startHeldFetch(t, h, ch, "1", map[string]any{"timeout": 20})

	events := ch.waitTerminal(t, "1")
	assert.Equal(t, types.ErrorTimeout, errorData(t, events[len(events)-1]).Kind)
	assert.Equal(t, 0, h.broker.Pending())
}

func TestDuplicateCorrelationIDIsRejected(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityFetch})
	ch := newFakeChannel("c1")
	startHeldFetch(t, h, ch, "1", nil)

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": "https://example.com/"})))
	events := ch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrorInvalid, errorData(t, events[0]).Kind)
	assert.Equal(t, 1, h.broker.Pending())

	require.True(t, h.broker.Abort(ch, "1"))
}

func TestFetchRedirectIsChecked(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			target := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1) + "/end"
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	engine, err := policy.NewEngine()
	require.NoError(t, err)
	script := &scripts.UserScript{
		ID:      "script-1",
		Enabled: true,
		Metadata: metadata.ScriptMetadata{
			Name:    "Redirecting",
			Matches: []string{"https://example.com/*"},
			Grants:  []string{policy.CapabilityFetch},
		},
	}
	denials := &recordedDenials{}
	perms := fakePermissions{"script-1|127.0.0.1": true}
	b := New(engine, fakeSource{script.ID: script}, perms, DefaultConfig(), zap.NewNop(),
		WithFetcher(httpx.NewClient(httpx.Config{})),
		WithDenialHandler(denials),
	)

	ch := newFakeChannel("c1")
	require.NoError(t, b.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": srv.URL + "/start"})))
	events := ch.waitTerminal(t, "1")

	data := errorData(t, events[len(events)-1])
	assert.Equal(t, types.ErrorPolicy, data.Kind)
	assert.Equal(t, string(policy.ReasonInternalHostBlocked), data.Reason)

	recorded := denials.all()
	require.Len(t, recorded, 1)
	assert.Contains(t, recorded[0].Target, "localhost")
}

type hostsResolver map[string]netip.Addr

func (r hostsResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addr, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return []netip.Addr{addr}, nil
}

func TestFetchBlocksNamesResolvingToInternalHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("internal-secret"))
	}))
	defer srv.Close()
	target := fmt.Sprintf("http://intranet.test:%d/", srv.Listener.Addr().(*net.TCPAddr).Port)

	engine, err := policy.NewEngine()
	require.NoError(t, err)
	client := httpx.NewClient(httpx.Config{
		AddressCheck: func(host string, addr netip.Addr) error { return engine.CheckAddress(host, addr).Err() },
		Resolver:     hostsResolver{"intranet.test": netip.MustParseAddr("127.0.0.1")},
	})
	script := &scripts.UserScript{
		ID:      "script-1",
		Enabled: true,
		Metadata: metadata.ScriptMetadata{
			Name:     "Everywhere",
			Matches:  []string{"https://example.com/*"},
			Connects: []string{"*"},
			Grants:   []string{policy.CapabilityFetch},
		},
	}
	require.True(t, engine.CanConnect(script.ID, &script.Metadata, target, nil).Allowed)

	denials := &recordedDenials{}
	perms := fakePermissions{}
	b := New(engine, fakeSource{script.ID: script}, perms, DefaultConfig(), zap.NewNop(),
		WithFetcher(client),
		WithDenialHandler(denials),
	)

	ch := newFakeChannel("c1")
	require.NoError(t, b.Invoke(ch, call(policy.CapabilityFetch, "1", map[string]any{"url": target})))
	events := ch.waitTerminal(t, "1")

	data := errorData(t, events[len(events)-1])
	assert.Equal(t, types.ErrorPolicy, data.Kind)
	assert.Equal(t, string(policy.ReasonInternalHostBlocked), data.Reason)
	assert.Contains(t, data.Message, "127.0.0.1")

	recorded := denials.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, target, recorded[0].Target)
	assert.Equal(t, policy.CapabilityFetch, recorded[0].Capability)

	// An explicit user grant for the host lets the request through.
	perms["script-1|intranet.test"] = true
	require.NoError(t, b.Invoke(ch, call(policy.CapabilityFetch, "2", map[string]any{"url": target})))
	events = ch.waitTerminal(t, "2")

	done := events[len(events)-1]
	require.Equal(t, types.EventCompleted, done.Type)
	result, ok := done.Data.(*FetchResult)
	require.True(t, ok, "unexpected payload %T", done.Data)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "internal-secret", result.Response)
}

func TestValues(t *testing.T) {
	h := newHarness(t, []string{
		policy.CapabilityGetValue, policy.CapabilitySetValue,
		policy.CapabilityDeleteValue, policy.CapabilityListValues,
	})
	ch := newFakeChannel("c1")

	completed := func(capability, id string, params any) any {
		t.Helper()
		require.NoError(t, h.broker.Invoke(ch, call(capability, id, params)))
		events := ch.waitTerminal(t, id)
		require.Equal(t, types.EventCompleted, events[len(events)-1].Type)
		return events[len(events)-1].Data
	}

	got := completed(policy.CapabilityGetValue, "g0", map[string]any{"key": "count", "default": 5}).(*ValueResult)
	assert.False(t, got.Found)
	assert.JSONEq(t, "5", string(got.Value))

	completed(policy.CapabilitySetValue, "s1", map[string]any{"key": "count", "value": 9})
	got = completed(policy.CapabilityGetValue, "g1", map[string]any{"key": "count"}).(*ValueResult)
	assert.True(t, got.Found)
	assert.JSONEq(t, "9", string(got.Value))

	keys := completed(policy.CapabilityListValues, "l1", nil).(*KeysResult)
	assert.Equal(t, []string{"count"}, keys.Keys)

	completed(policy.CapabilityDeleteValue, "d1", map[string]any{"key": "count"})
	keys = completed(policy.CapabilityListValues, "l2", nil).(*KeysResult)
	assert.Empty(t, keys.Keys)
	assert.NotNil(t, keys.Keys)
}

func TestValuesUnavailable(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)
	script := &scripts.UserScript{ID: "script-1", Enabled: true, Metadata: metadata.ScriptMetadata{Name: "s", Grants: []string{policy.CapabilityListValues}}}
	b := New(engine, fakeSource{script.ID: script}, nil, DefaultConfig(), nil)

	ch := newFakeChannel("c1")
	require.NoError(t, b.Invoke(ch, call(policy.CapabilityListValues, "1", nil)))
	events := ch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrorInvalid, errorData(t, events[0]).Kind)
}

func TestCookies(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityCookie})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityCookie, "set", map[string]any{
		"action": "set", "url": "https://example.com/", "name": "a", "value": "1",
	})))
	set := ch.waitTerminal(t, "set")
	c, ok := set[0].Data.(*cookies.Cookie)
	require.True(t, ok)
	assert.Equal(t, "example.com", c.Domain)

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityCookie, "list", map[string]any{
		"action": "list", "url": "https://example.com/",
	})))
	list := ch.waitTerminal(t, "list")[0].Data.(*CookieListResult)
	require.Len(t, list.Cookies, 1)

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityCookie, "del", map[string]any{
		"action": "delete", "url": "https://example.com/", "name": "a",
	})))
	del := ch.waitTerminal(t, "del")[0].Data.(*CookieDeleteResult)
	assert.Equal(t, 1, del.Removed)

	// Cookie access is still subject to the connect rules.
	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityCookie, "x", map[string]any{
		"action": "list", "url": "https://other.org/",
	})))
	assert.Equal(t, types.ErrorPolicy, errorData(t, ch.waitTerminal(t, "x")[0]).Kind)
}

func TestMenus(t *testing.T) {
	h := newHarness(t, []string{policy.CapabilityRegisterMenu, policy.CapabilityUnregisterMenu})
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityRegisterMenu, "r1", map[string]any{"caption": "First"})))
	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityRegisterMenu, "r2", map[string]any{"caption": "Second"})))
	first := ch.waitTerminal(t, "r1")[0].Data.(*MenuResult)

	menus := h.broker.Menus("c1")
	require.Len(t, menus, 2)
	assert.Equal(t, "First", menus[0].Caption)
	assert.Equal(t, "Second", menus[1].Caption)
	assert.Equal(t, "Test Script", menus[0].ScriptName)
	assert.Empty(t, h.broker.Menus("c2"))

	require.NoError(t, h.broker.TriggerMenu("c1", first.Key))
	var triggered types.Event
	for _, e := range ch.Events() {
		if e.Type == types.EventMenuCommand {
			triggered = e
		}
	}
	assert.Equal(t, types.MenuCommandData{ScriptID: "script-1", Key: first.Key, Caption: "First"}, triggered.Data)
	assert.ErrorIs(t, h.broker.TriggerMenu("c2", first.Key), ErrMenuNotFound)

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityUnregisterMenu, "u1", map[string]any{"key": first.Key})))
	assert.True(t, ch.waitTerminal(t, "u1")[0].Data.(*MenuResult).Removed)
	assert.Len(t, h.broker.Menus("c1"), 1)
}

func TestInfoNeedsNoGrant(t *testing.T) {
	h := newHarness(t, nil)
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call("GM.info", "1", nil)))
	events := ch.waitTerminal(t, "1")
	require.Equal(t, types.EventCompleted, events[0].Type)

	got := events[0].Data.(*InfoResult)
	assert.Equal(t, HandlerName, got.ScriptHandler)
	assert.Equal(t, "script-1", got.ScriptID)
	assert.Equal(t, "Test Script", got.Script.Name)
	assert.Equal(t, "abc", got.ScriptHash)
}

func TestNotificationDefaultsTitle(t *testing.T) {
	notifier := notify.NewNotifier(zap.NewNop(), 10)
	h := newHarness(t, []string{policy.CapabilityNotification}, WithNotifier(notifier))
	ch := newFakeChannel("c1")

	require.NoError(t, h.broker.Invoke(ch, call(policy.CapabilityNotification, "1", map[string]any{"text": "<b>done</b>"})))
	events := ch.waitTerminal(t, "1")
	require.Equal(t, types.EventCompleted, events[0].Type)

	history := notifier.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Test Script", history[0].Title)
	assert.Equal(t, "done", history[0].Text)
	assert.Equal(t, events[0].Data.(*NotificationResult).ID, history[0].ID)
}

func TestNotifyDenials(t *testing.T) {
	notifier := notify.NewNotifier(zap.NewNop(), 10)
	h := &NotifyDenials{Notifier: notifier}

	h.OnDenial(policy.Denial{ScriptID: "s", ScriptName: "Mine", Capability: policy.CapabilityFetch,
		Decision: policy.Decision{Reason: policy.ReasonMissingCapability}})
	assert.Empty(t, notifier.History())

	h.OnDenial(policy.Denial{ScriptID: "s", ScriptName: "Mine", Target: "https://other.org/",
		Decision: policy.Decision{Reason: policy.ReasonConnectDenied}})
	history := notifier.History()
	require.Len(t, history, 1)
	assert.Equal(t, "[Mine] Request Blocked", history[0].Title)
	assert.Contains(t, history[0].Text, "https://other.org/")
}
