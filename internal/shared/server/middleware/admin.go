package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"image-vault/internal/shared/server/respond"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKey guards admin routes with a shared secret, sent either in the
// X-Admin-Key header or as "api_key" in a JSON body. With no secret
// configured the routes are disabled.
func AdminKey(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			respond.Error(c, http.StatusForbidden, "admin_disabled", "Admin API is not configured", nil)
			return
		}

		key := strings.TrimSpace(c.GetHeader(adminKeyHeader))
		if key == "" {
			key = apiKeyFromBody(c)
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Invalid admin key", nil)
			return
		}
		c.Next()
	}
}

// apiKeyFromBody reads a small JSON body and puts it back for the handler.
func apiKeyFromBody(c *gin.Context) string {
	if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<10))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.APIKey)
}
