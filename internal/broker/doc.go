// Package broker executes privileged operations on behalf of running
// scripts and streams results back over a Channel.
//
// Every Invocation is decoded into a typed Request, authorized completely by
// the policy engine and only then executed. Fetch, download and cookie
// operations run in their own goroutine and are tracked in a pending
// registry keyed by (channel, correlation id) until they finish:
//
//	Invoke --decode--> Request --authorize--> start --> goroutine
//	                       |                              | progress events
//	                  error event                         v
//	                                          exactly one completed/error event
//
// Abort, timeout and Disconnect all cancel through the registry. Whoever
// removes an entry records why, and the operation's goroutine emits the
// matching terminal event (nothing, for a disconnected channel).
//
// The broker never retries.
package broker
