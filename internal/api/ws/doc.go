// Package ws carries invocations and events over WebSocket.
//
// Each connection is one broker channel. The first server frame is a
// session event with the channel id, which the management API uses to
// address the session's menu commands.
//
// Client frames:
//   - invoke: an Invocation, fields inline
//   - abort: {"type":"abort","correlationId":"..."}
//
// Server frames are broker Events (progress, completed, error,
// menu_command). When the connection closes, every pending operation of
// the channel is aborted without further events.
//
// Example Usage:
//
//	handler := ws.NewHandler(broker, logger).WithMetrics(metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
