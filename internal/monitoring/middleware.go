package monitoring

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware instruments every request with Prometheus metrics and a
// structured access log line.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		// FullPath keeps label cardinality bounded: /api/owners/:id/trend
		// instead of one label value per owner.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(endpoint, c.Request.Method, strconv.Itoa(status), duration)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			slog.Error("Request failed", attrs...)
		case status >= 400:
			slog.Warn("Request rejected", attrs...)
		default:
			slog.Info("Request handled", attrs...)
		}

		if duration > 5*time.Second {
			slog.Warn("Slow request", "path", c.Request.URL.Path, "duration_ms", duration.Milliseconds())
		}
	}
}
