package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LogRequests logs one line per finished HTTP request. Server errors are
// raised to error level so they stand out without a metrics dashboard.
func LogRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}

		if c.Writer.Status() >= 500 {
			slog.ErrorContext(ctx, "http: request failed", attrs...)
			return
		}
		slog.InfoContext(ctx, "http: request finished", attrs...)
	}
}
