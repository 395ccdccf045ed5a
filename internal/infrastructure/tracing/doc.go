/*
Package tracing provides lightweight request tracing.

Every management API request gets a span whose IDs travel in the
X-Trace-ID and X-Span-ID headers; an incoming X-Trace-ID is continued.
WebSocket channels inherit the trace of their upgrade request and each
invocation becomes a child span. Finished spans are logged through zap at
debug level from a buffered collector.

	tracer := tracing.New("scriptgate", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracing.Operation(tracer, ctx, "invoke", tags, func(ctx context.Context) error {
		return work(ctx)
	})
*/
package tracing
