package broker

import (
	"fmt"

	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
)

// NotificationResult is the completed payload of a notification.
type NotificationResult struct {
	ID string `json:"id"`
}

func (b *Broker) notify(script *scripts.UserScript, r *NotificationRequest) (any, error) {
	if b.notifier == nil {
		return nil, errUnavailable
	}
	title := r.Title
	if title == "" {
		title = script.Metadata.Name
	}
	n := b.notifier.Notify(notify.Notification{
		ScriptID: script.ID,
		Title:    title,
		Text:     r.Text,
		ImageURL: r.Image,
	})
	return &NotificationResult{ID: n.ID}, nil
}

// NotifyDenials posts a "Request Blocked" notification for every denied
// network target. Capability denials are left to the error event.
type NotifyDenials struct {
	Notifier Notifier
}

var _ policy.DenialHandler = (*NotifyDenials)(nil)

func (h *NotifyDenials) OnDenial(d policy.Denial) {
	if d.Target == "" || d.Decision.Reason == policy.ReasonMissingCapability {
		return
	}
	h.Notifier.Notify(notify.Notification{
		ScriptID: d.ScriptID,
		Title:    fmt.Sprintf("[%s] Request Blocked", d.ScriptName),
		Text:     fmt.Sprintf("A request to %s was blocked. Click to manage script permissions.", d.Target),
		Priority: 2,
	})
}
