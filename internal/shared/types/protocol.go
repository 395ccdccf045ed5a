package types

import "encoding/json"

// Invocation is a capability call from a running script.
type Invocation struct {
	Capability    string          `json:"capability"`
	ScriptID      string          `json:"scriptId"`
	CorrelationID string          `json:"correlationId"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// EventType discriminates Event payloads.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	// EventMenuCommand is host initiated: the user picked a registered menu
	// command. CorrelationID is the command key.
	EventMenuCommand EventType = "menu_command"
	// EventSession is the first frame of a channel and carries its id.
	EventSession EventType = "session"
)

// Terminal reports whether no further events follow for the correlation id.
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventError
}

// Event is sent back to the script's execution context.
type Event struct {
	Type          EventType `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Data          any       `json:"data,omitempty"`
}

// ErrorKind tells a UI what kind of failure an error event reports. Only
// ErrorPolicy failures can be fixed by granting a permission.
type ErrorKind string

const (
	ErrorPolicy    ErrorKind = "policy"
	ErrorTransport ErrorKind = "transport"
	ErrorAborted   ErrorKind = "aborted"
	ErrorTimeout   ErrorKind = "timeout"
	ErrorInvalid   ErrorKind = "invalid"
)

// ErrorData is the payload of an error event.
type ErrorData struct {
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Loaded           int64 `json:"loaded"`
	Total            int64 `json:"total"`
	LengthComputable bool  `json:"lengthComputable"`
}

// MenuCommandData is the payload of a menu_command event.
type MenuCommandData struct {
	ScriptID string `json:"scriptId"`
	Key      string `json:"key"`
	Caption  string `json:"caption"`
}

// SessionData is the payload of a session event.
type SessionData struct {
	ChannelID string `json:"channelId"`
}

// ClientFrameType discriminates frames sent by the page side of a channel.
type ClientFrameType string

const (
	FrameInvoke ClientFrameType = "invoke"
	FrameAbort  ClientFrameType = "abort"
)

// ClientFrame is one message read from a channel.
type ClientFrame struct {
	Type ClientFrameType `json:"type"`
	Invocation
}
