package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPRecorder records one served request
type HTTPRecorder interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// HTTPMetrics reports request counts and latency by route pattern. The
// pattern comes from c.FullPath so path parameters do not explode label
// cardinality.
func HTTPMetrics(recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		recorder.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
