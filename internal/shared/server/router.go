package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"image-vault/internal/images"
	"image-vault/internal/jobs"
	"image-vault/internal/ratelimit"
	"image-vault/internal/services/health"
	"image-vault/internal/shared/config"
	"image-vault/internal/shared/metrics"
	"image-vault/internal/shared/server/middleware"
	"image-vault/internal/shared/server/respond"
)

// RouterDeps carries the handlers mounted by NewRouter. Nil handlers are
// skipped.
type RouterDeps struct {
	Config        config.Config
	Limiter       *ratelimit.Limiter
	ImageHandler  *images.Handler
	JobHandler    *jobs.Handler
	HealthHandler *health.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = deps.Config.MaxFileSize + (1 << 20)

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: deps.Limiter,
			Skip:    isInfraRoute,
		}),
	)

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.GET("/metrics", metrics.Handler())

	root := r.Group("")
	if deps.HealthHandler != nil {
		deps.HealthHandler.RegisterRoutes(root)
	}
	if deps.ImageHandler != nil {
		deps.ImageHandler.RegisterRoutes(root)
		admin := r.Group("/admin", middleware.AdminKey(deps.Config.AdminSecret))
		deps.ImageHandler.RegisterAdminRoutes(admin)
	}
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(root)
	}

	return r
}

func isInfraRoute(c *gin.Context) bool {
	switch c.FullPath() {
	case "/health", "/metrics":
		return true
	}
	return false
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":3000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
