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
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// ExecutionTimer measures a single script execution end to end.
type ExecutionTimer struct {
	start   time.Time
	metrics *Metrics
}

// NewExecutionTimer starts timing an execution and marks it in flight.
func NewExecutionTimer(metrics *Metrics) *ExecutionTimer {
	metrics.ExecutionsInFlight.Inc()
	return &ExecutionTimer{start: time.Now(), metrics: metrics}
}

// Stop records the execution under the given outcome.
func (t *ExecutionTimer) Stop(outcome Outcome) {
	t.metrics.ExecutionsInFlight.Dec()
	t.metrics.RecordExecution(outcome, time.Since(t.start))
}
