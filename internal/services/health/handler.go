package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"image-vault/internal/shared/server/respond"
)

// Handler serves the health endpoint.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the health route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.get)
}

func (h *Handler) get(c *gin.Context) {
	report := h.Svc.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	respond.JSON(c, status, report)
}
