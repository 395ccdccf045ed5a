// Package types holds the wire protocol spoken on a script channel.
//
// Client frames carry an Invocation (or an abort) from the page side. The
// host answers with Events correlated by correlationId: progress while an
// operation streams, then exactly one completed, error or aborted event.
// The first event on every channel is a session event carrying the
// channel id.
package types
