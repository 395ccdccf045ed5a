package policy

import "fmt"

// DenialReason classifies why a request was refused.
type DenialReason string

const (
	ReasonNone                DenialReason = ""
	ReasonMissingCapability   DenialReason = "missing_capability"
	ReasonConnectDenied       DenialReason = "connect_denied"
	ReasonInternalHostBlocked DenialReason = "internal_host_blocked"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenialReason, format string, args ...any) Decision {
	return Decision{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Err returns nil for an allowed decision and a *DenialError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DenialError{Reason: d.Reason, Message: d.Message}
}

// DenialError is a refused request. Callers use errors.As to tell policy
// denials apart from transport failures.
type DenialError struct {
	Reason  DenialReason
	Message string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("denied (%s): %s", e.Reason, e.Message)
}
