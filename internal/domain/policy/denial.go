package policy

import (
	"go.uber.org/zap"
)

// Denial describes a refused request for a DenialHandler.
type Denial struct {
	ScriptID      string
	ScriptName    string
	Capability    string
	CorrelationID string
	Target        string
	Decision      Decision
}

// DenialHandler is told about every denial. It must not block.
type DenialHandler interface {
	OnDenial(d Denial)
}

// Ensure implementations satisfy the interface.
var _ DenialHandler = (*NopDenialHandler)(nil)
var _ DenialHandler = (*LogDenialHandler)(nil)
var _ DenialHandler = (DenialHandlers)(nil)

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(Denial) {}

// LogDenialHandler logs denials.
type LogDenialHandler struct {
	Logger *zap.Logger
}

func (h *LogDenialHandler) OnDenial(d Denial) {
	h.Logger.Info("Request denied",
		zap.String("script_id", d.ScriptID),
		zap.String("capability", d.Capability),
		zap.String("correlation_id", d.CorrelationID),
		zap.String("url", d.Target),
		zap.String("reason", string(d.Decision.Reason)),
		zap.String("message", d.Decision.Message),
	)
}

// DenialHandlers fans a denial out to several handlers in order.
type DenialHandlers []DenialHandler

func (hs DenialHandlers) OnDenial(d Denial) {
	for _, h := range hs {
		h.OnDenial(d)
	}
}
