package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

var (
	ErrNilChannel  = errors.New("nil channel")
	errUnavailable = errors.New("capability is not available on this host")
)

// Channel is the ordered, reliable link to one script execution context.
// Send may be called from several goroutines; implementations serialize
// writes.
type Channel interface {
	ID() string
	Send(event types.Event) error
}

// ScriptSource looks up installed scripts.
type ScriptSource interface {
	Get(scriptID string) (*scripts.UserScript, bool)
}

// Config tunes the broker.
type Config struct {
	// FetchTimeout applies to fetches that set no timeout. Zero disables it.
	FetchTimeout time.Duration
	// MaxBodyBytes bounds a buffered fetch response. Zero disables it.
	MaxBodyBytes int64
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 60 * time.Second,
		MaxBodyBytes: 50 << 20,
	}
}

// Option configures a Broker.
type Option func(*Broker)

// WithValues sets the key/value store.
func WithValues(v ValueStore) Option { return func(b *Broker) { b.values = v } }

// WithCookies sets the cookie store.
func WithCookies(c CookieStore) Option { return func(b *Broker) { b.cookies = c } }

// WithFetcher sets the HTTP transport.
func WithFetcher(f Fetcher) Option { return func(b *Broker) { b.fetcher = f } }

// WithDownloader sets the download facility.
func WithDownloader(d Downloader) Option { return func(b *Broker) { b.downloads = d } }

// WithNotifier sets the notification surface.
func WithNotifier(n Notifier) Option { return func(b *Broker) { b.notifier = n } }

// WithDenialHandler sets what happens, besides the error event, on a denial.
func WithDenialHandler(h policy.DenialHandler) Option { return func(b *Broker) { b.denials = h } }

// WithMetrics adds metrics tracking to the broker
func WithMetrics(m *monitoring.Metrics) Option { return func(b *Broker) { b.metrics = m } }

// Broker routes invocations to privileged operations.
type Broker struct {
	cfg     Config
	policy  *policy.Engine
	scripts ScriptSource
	perms   policy.PermissionStore

	values    ValueStore
	cookies   CookieStore
	fetcher   Fetcher
	downloads Downloader
	notifier  Notifier
	denials   policy.DenialHandler

	pending *registry
	menus   *menuRegistry

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a Broker. perms may be nil when no user grants exist.
func New(engine *policy.Engine, source ScriptSource, perms policy.PermissionStore, cfg Config, logger *zap.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if perms == nil {
		perms = policy.NoPermissions{}
	}

	b := &Broker{
		cfg:     cfg,
		policy:  engine,
		scripts: source,
		perms:   perms,
		denials: &policy.NopDenialHandler{},
		menus:   newMenuRegistry(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pending = newRegistry(func(n int) { b.metrics.SetPendingOperations(n) })
	return b
}

// Invoke handles one invocation. All outcomes, including denials and
// malformed params, are reported as events on ch; the only error returned
// is ErrNilChannel.
func (b *Broker) Invoke(ch Channel, inv types.Invocation) error {
	if ch == nil {
		return ErrNilChannel
	}

	capability := policy.Canonical(inv.Capability)
	timer := monitoring.NewTimer(b.metrics, capability)

	if inv.CorrelationID == "" {
		b.sendError(ch, "", types.ErrorInvalid, "", "correlationId required")
		timer.Stop("invalid")
		return nil
	}

	req, err := DecodeRequest(inv.Capability, inv.Params)
	if err != nil {
		b.sendError(ch, inv.CorrelationID, types.ErrorInvalid, "", err.Error())
		timer.Stop("invalid")
		return nil
	}

	script, ok := b.scripts.Get(inv.ScriptID)
	if !ok || !script.Enabled {
		b.sendError(ch, inv.CorrelationID, types.ErrorInvalid, "", "unknown or disabled script")
		timer.Stop("invalid")
		return nil
	}

	// Authorization is complete before anything below has a side effect.
	if d := b.authorize(script, req); !d.Allowed {
		target := ""
		if t, ok := req.(targeted); ok {
			target = t.Target()
		}
		b.reportDenial(script, req.Capability(), inv.CorrelationID, target, d)
		b.sendError(ch, inv.CorrelationID, types.ErrorPolicy, string(d.Reason), d.Message)
		timer.Stop("denied")
		return nil
	}

	op := invocation{ch: ch, correlationID: inv.CorrelationID, script: script, timer: timer}

	switch r := req.(type) {
	case *FetchRequest:
		timeout := b.cfg.FetchTimeout
		if r.Timeout > 0 {
			timeout = time.Duration(r.Timeout) * time.Millisecond
		}
		b.start(op, KindFetch, timeout, func(ctx context.Context, progress progressFunc) (any, error) {
			return b.fetch(ctx, op, r, progress)
		})
	case *DownloadRequest:
		b.start(op, KindDownload, time.Duration(r.Timeout)*time.Millisecond, func(ctx context.Context, progress progressFunc) (any, error) {
			return b.download(ctx, op, r, progress)
		})
	case *CookieRequest:
		b.start(op, KindCookie, 0, func(ctx context.Context, _ progressFunc) (any, error) {
			return b.cookie(ctx, r)
		})
	case *GetValueRequest:
		b.respond(op, func() (any, error) { return b.getValue(script, r) })
	case *SetValueRequest:
		b.respond(op, func() (any, error) { return b.setValue(script, r) })
	case *DeleteValueRequest:
		b.respond(op, func() (any, error) { return b.deleteValue(script, r) })
	case *ListValuesRequest:
		b.respond(op, func() (any, error) { return b.listValues(script) })
	case *NotificationRequest:
		b.respond(op, func() (any, error) { return b.notify(script, r) })
	case *RegisterMenuRequest:
		b.respond(op, func() (any, error) { return b.registerMenu(ch, script, r), nil })
	case *UnregisterMenuRequest:
		b.respond(op, func() (any, error) { return b.unregisterMenu(ch, script, r), nil })
	case *InfoRequest:
		b.respond(op, func() (any, error) { return info(script), nil })
	default:
		b.sendError(ch, inv.CorrelationID, types.ErrorInvalid, "", "unhandled capability")
		timer.Stop("invalid")
	}
	return nil
}

func (b *Broker) authorize(script *scripts.UserScript, req Request) policy.Decision {
	d := b.policy.CanUseCapability(&script.Metadata, req.Capability())
	if !d.Allowed {
		return d
	}
	if t, ok := req.(targeted); ok {
		return b.policy.CanConnect(script.ID, &script.Metadata, t.Target(), b.perms)
	}
	return d
}

func (b *Broker) reportDenial(script *scripts.UserScript, capability, correlationID, target string, d policy.Decision) {
	b.metrics.RecordDenial(string(d.Reason))
	b.denials.OnDenial(policy.Denial{
		ScriptID:      script.ID,
		ScriptName:    script.Metadata.Name,
		Capability:    capability,
		CorrelationID: correlationID,
		Target:        target,
		Decision:      d,
	})
}

// Abort cancels the operation correlationID of ch. Aborting an unknown or
// finished operation does nothing. It reports whether an operation was
// cancelled.
func (b *Broker) Abort(ch Channel, correlationID string) bool {
	if ch == nil {
		return false
	}
	op := b.pending.remove(opKey{channel: ch.ID(), correlationID: correlationID}, endAborted)
	if op == nil {
		return false
	}
	op.cancel()
	b.logger.Debug("Operation aborted",
		zap.String("channel_id", ch.ID()),
		zap.String("correlation_id", correlationID),
		zap.String("kind", string(op.kind)),
	)
	return true
}

// Disconnect aborts every operation of ch without emitting events and
// discards its menu commands.
func (b *Broker) Disconnect(ch Channel) {
	if ch == nil {
		return
	}
	ops := b.pending.removeChannel(ch.ID(), endDisconnected)
	for _, op := range ops {
		op.cancel()
	}
	menus := b.menus.removeChannel(ch.ID())

	b.logger.Debug("Channel disconnected",
		zap.String("channel_id", ch.ID()),
		zap.Int("aborted", len(ops)),
		zap.Int("menu_commands", menus),
	)
}

// Pending returns the number of in-flight operations.
func (b *Broker) Pending() int {
	return b.pending.len()
}

func (b *Broker) send(ch Channel, event types.Event) {
	if err := ch.Send(event); err != nil {
		b.logger.Debug("Failed to send event",
			zap.String("channel_id", ch.ID()),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (b *Broker) sendError(ch Channel, correlationID string, kind types.ErrorKind, reason, message string) {
	b.send(ch, types.Event{
		Type:          types.EventError,
		CorrelationID: correlationID,
		Data:          types.ErrorData{Kind: kind, Reason: reason, Message: message},
	})
}
