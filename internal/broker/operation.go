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

// invocation is an authorized call on its way to a terminal event.
type invocation struct {
	ch            Channel
	correlationID string
	script        *scripts.UserScript
	timer         *monitoring.Timer
}

type progressFunc func(types.ProgressData)

type operation func(ctx context.Context, progress progressFunc) (any, error)

func progressData(loaded, total int64) types.ProgressData {
	if total < 0 {
		return types.ProgressData{Loaded: loaded}
	}
	return types.ProgressData{Loaded: loaded, Total: total, LengthComputable: true}
}

// respond runs a synchronous operation and emits its terminal event.
func (b *Broker) respond(inv invocation, run func() (any, error)) {
	result, err := run()
	if err != nil {
		kind := types.ErrorTransport
		if errors.Is(err, errUnavailable) {
			kind = types.ErrorInvalid
		}
		b.sendError(inv.ch, inv.correlationID, kind, "", err.Error())
		inv.timer.Stop("error")
		return
	}
	b.send(inv.ch, types.Event{Type: types.EventCompleted, CorrelationID: inv.correlationID, Data: result})
	inv.timer.Stop("ok")
}

// start registers a pending operation and runs it in its own goroutine.
// The goroutine is the only sender of the terminal event.
func (b *Broker) start(inv invocation, kind Kind, timeout time.Duration, run operation) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		cancelParent := cancel
		cancel = func() {
			cancelTimeout()
			cancelParent()
		}
	}

	op := &pendingOperation{
		key:      opKey{channel: inv.ch.ID(), correlationID: inv.correlationID},
		kind:     kind,
		scriptID: inv.script.ID,
		cancel:   cancel,
	}
	if err := b.pending.add(op); err != nil {
		cancel()
		b.sendError(inv.ch, inv.correlationID, types.ErrorInvalid, "", err.Error())
		inv.timer.Stop("invalid")
		return
	}

	go func() {
		defer cancel()
		progress := func(p types.ProgressData) {
			if ctx.Err() == nil {
				b.send(inv.ch, types.Event{Type: types.EventProgress, CorrelationID: inv.correlationID, Data: p})
			}
		}
		result, err := run(ctx, progress)
		b.finish(ctx, inv, op, result, err)
	}()
}

func (b *Broker) finish(ctx context.Context, inv invocation, op *pendingOperation, result any, err error) {
	if b.pending.remove(op.key, endFinished) == nil {
		switch b.pending.reasonOf(op) {
		case endAborted:
			b.sendError(inv.ch, inv.correlationID, types.ErrorAborted, "", "operation aborted")
			inv.timer.Stop("aborted")
		case endDisconnected:
			inv.timer.Stop("disconnected")
		}
		return
	}

	if err == nil {
		b.send(inv.ch, types.Event{Type: types.EventCompleted, CorrelationID: inv.correlationID, Data: result})
		inv.timer.Stop("ok")
		return
	}

	var denial *policy.DenialError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		b.sendError(inv.ch, inv.correlationID, types.ErrorTimeout, "", "operation timed out")
		inv.timer.Stop("timeout")
	case errors.As(err, &denial):
		b.sendError(inv.ch, inv.correlationID, types.ErrorPolicy, string(denial.Reason), denial.Message)
		inv.timer.Stop("denied")
	case errors.Is(err, errUnavailable), errors.Is(err, ErrInvalidParams):
		b.sendError(inv.ch, inv.correlationID, types.ErrorInvalid, "", err.Error())
		inv.timer.Stop("invalid")
	default:
		b.logger.Debug("Operation failed",
			zap.String("script_id", op.scriptID),
			zap.String("correlation_id", inv.correlationID),
			zap.String("kind", string(op.kind)),
			zap.Error(err),
		)
		b.sendError(inv.ch, inv.correlationID, types.ErrorTransport, "", err.Error())
		inv.timer.Stop("error")
	}
}
