package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const httpRequestMessage = "HTTP Request"

// GinOption configures GinMiddleware
type GinOption func(*ginLogConfig)

type ginLogConfig struct {
	quiet map[string]struct{}
}

// WithQuietPaths stops successful requests to paths from being logged.
// Health probes and metric scrapes would otherwise drown the request log.
func WithQuietPaths(paths ...string) GinOption {
	return func(cfg *ginLogConfig) {
		for _, p := range paths {
			cfg.quiet[p] = struct{}{}
		}
	}
}

// GinMiddleware attaches a request-scoped logger to the request context and
// writes one entry per request once the handler chain is done. It must run
// after the request ID middleware.
func GinMiddleware(base *zap.Logger, opts ...GinOption) gin.HandlerFunc {
	cfg := ginLogConfig{quiet: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString("request_id")
		reqLogger := base.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		ctx := WithContext(c.Request.Context(), reqLogger)
		if requestID != "" {
			ctx = WithRequestID(ctx, requestID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		if _, quiet := cfg.quiet[c.Request.URL.Path]; quiet && status < http.StatusBadRequest {
			return
		}
		fields := []zap.Field{
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		// the auth middleware adds the organization after this one ran
		if orgID := GetOrganizationID(c.Request.Context()); orgID != "" {
			fields = append(fields, zap.String("organization_id", orgID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error(httpRequestMessage, fields...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn(httpRequestMessage, fields...)
		default:
			reqLogger.Info(httpRequestMessage, fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 in the API error envelope and
// logs it with the stack
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			requestID := c.GetString("request_id")
			base.Error("Panic recovered",
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "INTERNAL_ERROR",
					"message":    "An internal error occurred",
					"request_id": requestID,
					"timestamp":  time.Now().UTC(),
				},
			})
		}()
		c.Next()
	}
}
