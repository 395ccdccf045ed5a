package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures the duration of one invocation
type Timer struct {
	start      time.Time
	metrics    *Metrics
	capability string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, capability string) *Timer {
	return &Timer{
		start:      time.Now(),
		metrics:    metrics,
		capability: capability,
	}
}

// Stop stops the timer and records the invocation outcome
func (t *Timer) Stop(outcome string) {
	t.metrics.RecordInvocation(t.capability, outcome, time.Since(t.start))
}
