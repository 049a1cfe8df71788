package jobs

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"image-vault/internal/shared/server/middleware"
	"image-vault/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// BaseURL prefixes image links in finished jobs.
	BaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, baseURL string) *Handler {
	return &Handler{Svc: svc, BaseURL: baseURL}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/job/:id", h.get)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.JobIDKey, id)

	job, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
			return
		}
		_ = c.Error(err)
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		return
	}

	resp := gin.H{
		"job_id":     job.ID,
		"status":     job.Status,
		"size":       job.Size,
		"mime_type":  job.ContentType,
		"created_at": job.CreatedAt,
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt
	}
	if job.ImageID != "" {
		c.Set(middleware.ImageIDKey, job.ImageID)
		resp["image_id"] = job.ImageID
		resp["url"] = h.BaseURL + "/image/" + job.ImageID
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}

	status := http.StatusAccepted
	if job.Finished() {
		status = http.StatusOK
	}
	respond.JSON(c, status, resp)
}
