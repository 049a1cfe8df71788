package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"image-vault/internal/shared/telemetry"
)

// ImageIDKey and JobIDKey are set by handlers so request logs can be
// correlated with stored objects.
const (
	ImageIDKey = "imageId"
	JobIDKey   = "jobId"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"bytes":       c.Writer.Size(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if id := c.GetString(ImageIDKey); id != "" {
			fields["image_id"] = id
		}
		if id := c.GetString(JobIDKey); id != "" {
			fields["job_id"] = id
		}
		telemetry.Info("request.complete", fields)
	}
}
