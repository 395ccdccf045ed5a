package policy

import (
	"net/netip"
	"sync"

	"github.com/GriffinCanCode/scriptgate/internal/domain/matcher"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
)

// PermissionStore is the read side of the user's per-(script, host)
// decisions. Only explicit user action ever writes to it.
type PermissionStore interface {
	GetPermission(scriptID, domain string) (allow bool, found bool)
}

// NoPermissions is a PermissionStore with no recorded decisions.
type NoPermissions struct{}

// GetPermission implements PermissionStore.
func (NoPermissions) GetPermission(string, string) (bool, bool) { return false, false }

// engineConfig holds configuration for the Engine.
type engineConfig struct {
	baseline Baseline
}

// EngineOption configures the Engine.
type EngineOption func(*engineConfig)

// WithBaseline replaces the built-in network deny-list.
func WithBaseline(b Baseline) EngineOption {
	return func(c *engineConfig) {
		c.baseline = b
	}
}

// patternCacheSize bounds the compiled @connect/@match cache. The cache is
// dropped wholesale when it fills, so patterns of deleted or updated
// scripts do not accumulate.
const patternCacheSize = 4096

// Engine evaluates capability and network-target checks. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	baseline *compiledBaseline

	mu       sync.RWMutex
	patterns map[string]*matcher.Matcher
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{baseline: DefaultBaseline()}
	for _, opt := range opts {
		opt(&cfg)
	}
	baseline, err := cfg.baseline.compile()
	if err != nil {
		return nil, err
	}
	return &Engine{baseline: baseline, patterns: make(map[string]*matcher.Matcher)}, nil
}

// CanUseCapability reports whether the script declared capability.
// GM_info is always allowed and unsafeWindow grants everything.
func (e *Engine) CanUseCapability(meta *metadata.ScriptMetadata, capability string) Decision {
	capability = Canonical(capability)
	if capability == CapabilityInfo {
		return allow()
	}
	if meta == nil || meta.MinimalGrants() {
		return deny(ReasonMissingCapability, "script has no grants, %s is not available", capability)
	}
	for _, g := range meta.Grants {
		switch Canonical(g) {
		case capability, CapabilityUnsafeWindow:
			return allow()
		}
	}
	return deny(ReasonMissingCapability, "missing @grant %s", capability)
}

// CanConnect reports whether the script may send a request to rawURL.
//
// Rules, first match wins:
//  1. non-http(s) or unparsable URLs are denied
//  2. an explicit user permission for (scriptID, host) allows
//  3. internal hosts and private networks are denied
//  4. suspicious top-level domains are denied
//  5. with no @connect, hosts covered by @match/@include are allowed
//  6. with @connect, hosts covered by @connect/@match/@include are allowed
//  7. everything else is denied
func (e *Engine) CanConnect(scriptID string, meta *metadata.ScriptMetadata, rawURL string, perms PermissionStore) Decision {
	t, err := parseTarget(rawURL)
	if err != nil {
		return deny(ReasonConnectDenied, "%s: %q", err, rawURL)
	}

	if perms != nil {
		if allowed, found := perms.GetPermission(scriptID, t.host); found && allowed {
			return allow()
		}
	}

	if e.baseline.internal(t.host, t.addr, t.isIP) {
		return deny(ReasonInternalHostBlocked, "%s is an internal or private network address", t.host)
	}
	if !t.isIP && e.baseline.suspicious(t.host) {
		return deny(ReasonConnectDenied, "%s is under a suspicious top-level domain and needs user approval", t.host)
	}
	if meta == nil {
		return deny(ReasonConnectDenied, "unknown script")
	}

	if len(meta.Connects) == 0 {
		if e.coversHost(meta.Matches, t.host) || e.coversHost(meta.Includes, t.host) {
			return allow()
		}
		return deny(ReasonConnectDenied, "%s is outside the script's @match scope and no @connect is declared", t.host)
	}

	if e.coversHost(meta.Connects, t.host) ||
		e.coversHost(meta.Matches, t.host) ||
		e.coversHost(meta.Includes, t.host) {
		return allow()
	}
	return deny(ReasonConnectDenied, "%s is not covered by @connect", t.host)
}

func (e *Engine) coversHost(patterns []string, host string) bool {
	for _, p := range patterns {
		if e.compiled(p).TestHost(host) {
			return true
		}
	}
	return false
}

func (e *Engine) compiled(pattern string) *matcher.Matcher {
	e.mu.RLock()
	m, ok := e.patterns[pattern]
	e.mu.RUnlock()
	if ok {
		return m
	}

	m = matcher.Compile(pattern)
	e.mu.Lock()
	if len(e.patterns) >= patternCacheSize {
		clear(e.patterns)
	}
	e.patterns[pattern] = m
	e.mu.Unlock()
	return m
}

// CheckAddress classifies an address a target host resolved to. Names that
// resolve into loopback, private or link-local networks are denied the same
// way the literal addresses are.
func (e *Engine) CheckAddress(host string, addr netip.Addr) Decision {
	addr = addr.WithZone("").Unmap()
	if e.baseline.internal(addr.String(), addr, true) {
		return deny(ReasonInternalHostBlocked, "%s resolves to internal address %s", host, addr)
	}
	return allow()
}
