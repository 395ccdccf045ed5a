package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/api/middleware"
	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptgate/internal/shared/id"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

// Handler manages WebSocket connections
type Handler struct {
	broker   *broker.Broker
	sessions *Sessions
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
}

// NewHandler creates a new WebSocket handler. Only same-origin upgrades are
// accepted until WithOrigins lists other origins.
func NewHandler(b *broker.Broker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		broker:   b,
		sessions: NewSessions(),
		logger:   logger,
	}
	h.upgrader.CheckOrigin = h.checkOrigin(nil)
	return h
}

// WithMetrics adds metrics tracking to the handler
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// WithTracer records a span per invocation under the upgrade request's trace.
func (h *Handler) WithTracer(tracer *tracing.Tracer) *Handler {
	h.tracer = tracer
	return h
}

// WithOrigins also accepts upgrades from the listed origins. "*" is ignored.
func (h *Handler) WithOrigins(origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o != "*" {
			allowed[o] = true
		}
	}
	h.upgrader.CheckOrigin = h.checkOrigin(allowed)
	return h
}

func (h *Handler) checkOrigin(allowed map[string]bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] || middleware.IsSameOrigin(origin, r.Host) {
			return true
		}
		h.logger.Warn("WebSocket origin refused", zap.String("origin", origin))
		return false
	}
}

// Sessions returns the open sessions.
func (h *Handler) Sessions() *Sessions { return h.sessions }

// HandleConnection upgrades the request and serves the channel until the
// connection closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	ch := newChannel(id.NewChannelID().String(), conn, h.metrics)
	h.sessions.add(ch)
	h.metrics.IncWSConnections()
	h.logger.Debug("Channel opened", zap.String("channel_id", ch.ID()))

	done := make(chan struct{})
	defer func() {
		close(done)
		h.broker.Disconnect(ch)
		h.sessions.remove(ch.ID())
		ch.close()
		h.metrics.DecWSConnections()
		h.logger.Debug("Channel closed", zap.String("channel_id", ch.ID()))
	}()

	go h.keepAlive(ch, done)

	if err := ch.Send(types.Event{
		Type: types.EventSession,
		Data: types.SessionData{ChannelID: ch.ID()},
	}); err != nil {
		return
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read error", zap.String("channel_id", ch.ID()), zap.Error(err))
			}
			return
		}
		h.handleFrame(ctx, ch, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, ch *Channel, data []byte) {
	var frame types.ClientFrame
	if err := sonic.Unmarshal(data, &frame); err != nil {
		h.metrics.RecordWSMessage("in", "malformed")
		h.sendError(ch, "", "malformed frame: "+err.Error())
		return
	}
	h.metrics.RecordWSMessage("in", string(frame.Type))

	switch frame.Type {
	case types.FrameInvoke:
		tags := map[string]string{
			"channel_id":     ch.ID(),
			"capability":     frame.Capability,
			"script_id":      frame.ScriptID,
			"correlation_id": frame.CorrelationID,
		}
		err := tracing.Operation(h.tracer, ctx, "ws.invoke", tags, func(context.Context) error {
			return h.broker.Invoke(ch, frame.Invocation)
		})
		if err != nil {
			h.logger.Error("Invoke failed", zap.String("channel_id", ch.ID()), zap.Error(err))
		}
	case types.FrameAbort:
		h.broker.Abort(ch, frame.CorrelationID)
	default:
		h.sendError(ch, frame.CorrelationID, "unknown frame type")
	}
}

func (h *Handler) keepAlive(ch *Channel, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ch.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) sendError(ch *Channel, correlationID, message string) {
	_ = ch.Send(types.Event{
		Type:          types.EventError,
		CorrelationID: correlationID,
		Data:          types.ErrorData{Kind: types.ErrorInvalid, Message: message},
	})
}
