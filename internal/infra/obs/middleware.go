package obs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type requestIDKey struct{}

// Middleware carries the request-scoped observability hooks the server
// installs: request id propagation and access logging.
type Middleware struct {
	Logger *slog.Logger
}

// RequestID honors an incoming X-Request-ID and mints one otherwise.
// The id rides the request context and is echoed back to the caller.
func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, id))
		c.Writer.Header().Set("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

// LoggerMiddleware emits one access-log line per request after the
// handler chain completes. Client errors log at Warn so toggles and
// duplicate saves don't read as server noise; 5xx logs at Error.
func (m Middleware) LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.Logger == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"),
		}
		switch {
		case status >= 500:
			m.Logger.Error("http request", attrs...)
		case status >= 400:
			m.Logger.Warn("http request", attrs...)
		default:
			m.Logger.Info("http request", attrs...)
		}
	}
}

// RequestIDFromContext returns the propagated request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
