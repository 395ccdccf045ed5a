package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Trace propagation headers.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// HTTPMiddleware opens a span per request, continuing an incoming trace.
// The request context carries the span and the response echoes its IDs.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := Extract(c.Request.Context(), c.Request.Header)
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+route)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		Inject(ctx, c.Writer.Header())

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}

// Operation runs fn inside a child span of ctx. A nil tracer just runs fn.
func Operation(tracer *Tracer, ctx context.Context, name string, tags map[string]string, fn func(context.Context) error) error {
	if tracer == nil {
		return fn(ctx)
	}
	span, ctx := tracer.StartSpan(ctx, name)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	err := fn(ctx)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	tracer.Submit(span)
	return err
}
