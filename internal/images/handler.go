package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"image-vault/internal/blob"
	"image-vault/internal/cryptox"
	"image-vault/internal/jobs"
	"image-vault/internal/publicid"
	"image-vault/internal/shared/metrics"
	"image-vault/internal/shared/server/middleware"
	"image-vault/internal/shared/server/respond"
	"image-vault/internal/shared/telemetry"
	"image-vault/internal/shared/util"
)

const (
	multipartSlack  = 1 << 20
	cacheControl    = "public, max-age=3600"
	auditTimeout    = 5 * time.Second
	defaultFetchTTL = 30 * time.Second
)

// JobQueue accepts uploads for background storage. Implemented by
// *jobs.Service.
type JobQueue interface {
	Submit(ctx context.Context, payload []byte, contentType, clientIP string) (jobs.Job, error)
}

// Notifier posts audit lines somewhere humans read them. Implemented by
// *telegram.Client.
type Notifier interface {
	SendLog(ctx context.Context, text string) error
}

// HandlerConfig carries the HTTP-facing limits.
type HandlerConfig struct {
	MaxFileSize   int64
	AllowedTypes  []string
	PublicBaseURL string
	FetchClient   *http.Client
}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc    *Service
	Jobs   JobQueue
	Audit  Notifier
	cfg    HandlerConfig
	client *http.Client
}

// NewHandler constructs a Handler. jobs and audit may be nil.
func NewHandler(svc *Service, queue JobQueue, audit Notifier, cfg HandlerConfig) *Handler {
	client := cfg.FetchClient
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTTL}
	}
	return &Handler{Svc: svc, Jobs: queue, Audit: audit, cfg: cfg, client: client}
}

// RegisterRoutes attaches public image routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.upload)
	rg.POST("/upload/url", h.uploadFromURL)
	rg.POST("/upload_from_url", h.uploadFromURL)
	rg.GET("/image/:id", h.get)
	rg.GET("/info/:id", h.info)
}

// RegisterAdminRoutes attaches admin routes. The caller guards rg.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.DELETE("/image/:id", h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxFileSize+multipartSlack)

	fileHeader, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		fileHeader, err = c.FormFile("file")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "image file is required", nil)
		return
	}
	if fileHeader.Size > h.cfg.MaxFileSize {
		h.tooLarge(c)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, ok := h.readBounded(c, file)
	if !ok {
		return
	}

	name, _ := util.SanitizeFileName(fileHeader.Filename)
	h.store(c, data, fileHeader.Header.Get("Content-Type"), name)
}

type urlUploadRequest struct {
	URL string `json:"url"`
}

func (h *Handler) uploadFromURL(c *gin.Context) {
	var req urlUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	src, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "url must be an absolute http or https URL", nil)
		return
	}

	fetchReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, src.String(), nil)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid url", nil)
		return
	}
	resp, err := h.client.Do(fetchReq)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "fetch_failed", "Failed to download image from URL", nil)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respond.Error(c, http.StatusBadRequest, "fetch_failed",
			fmt.Sprintf("Failed to download image: status code %d", resp.StatusCode), nil)
		return
	}
	if resp.ContentLength > h.cfg.MaxFileSize {
		h.tooLarge(c)
		return
	}

	data, ok := h.readBounded(c, resp.Body)
	if !ok {
		return
	}

	name, _ := util.SanitizeFileName(src.Path[strings.LastIndex(src.Path, "/")+1:])
	h.store(c, data, resp.Header.Get("Content-Type"), name)
}

// readBounded reads at most MaxFileSize bytes and answers 413 or 400 on
// failure.
func (h *Handler) readBounded(c *gin.Context, r io.Reader) ([]byte, bool) {
	data, err := io.ReadAll(io.LimitReader(r, h.cfg.MaxFileSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return nil, false
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return nil, false
	}
	if int64(len(data)) > h.cfg.MaxFileSize {
		h.tooLarge(c)
		return nil, false
	}
	if len(data) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is empty", nil)
		return nil, false
	}
	return data, true
}

// store validates the sniffed type and either stores data now or hands
// it to the job queue when ?async is set.
func (h *Handler) store(c *gin.Context, data []byte, declared, name string) {
	contentType, err := h.detectType(data, declared)
	if err != nil {
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), gin.H{
			"allowed": h.cfg.AllowedTypes,
		})
		return
	}

	if isAsync(c.Query("async")) && h.Jobs != nil {
		job, err := h.Jobs.Submit(c.Request.Context(), data, contentType, c.ClientIP())
		if err != nil {
			h.fail(c, "upload", err)
			return
		}
		c.Set(middleware.JobIDKey, job.ID)
		h.audit(c, fmt.Sprintf("Upload queued: job=%s size=%d type=%s name=%q client=%s",
			job.ID, len(data), contentType, name, util.HashClientKey(c.ClientIP())))
		respond.JSON(c, http.StatusAccepted, gin.H{
			"job_id":     job.ID,
			"status_url": "/job/" + job.ID,
		})
		return
	}

	start := time.Now()
	id, err := h.Svc.PutObject(c.Request.Context(), data, contentType)
	metrics.ObserveDuration("put", start)
	if err != nil {
		h.fail(c, "put", err)
		return
	}
	metrics.IncObjectStored(int64(len(data)))
	c.Set(middleware.ImageIDKey, id)
	h.audit(c, fmt.Sprintf("Image uploaded: size=%d type=%s name=%q client=%s",
		len(data), contentType, name, util.HashClientKey(c.ClientIP())))

	respond.JSON(c, http.StatusCreated, gin.H{
		"id":        id,
		"url":       h.imageURL(id),
		"size":      len(data),
		"mime_type": contentType,
	})
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ImageIDKey, id)

	start := time.Now()
	obj, err := h.Svc.GetObject(c.Request.Context(), id)
	metrics.ObserveDuration("get", start)
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	metrics.IncObjectServed()
	h.audit(c, fmt.Sprintf("Image retrieved: size=%d type=%s client=%s",
		obj.Size, obj.ContentType, util.HashClientKey(c.ClientIP())))

	etag := util.ETag(obj.Data)
	c.Header("ETag", etag)
	c.Header("Cache-Control", cacheControl)
	if util.ETagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("Content-Length", strconv.Itoa(len(obj.Data)))
	c.Header("X-Content-Type-Options", "nosniff")
	respond.Bytes(c, http.StatusOK, obj.ContentType, obj.Data)
}

func (h *Handler) info(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ImageIDKey, id)

	info, err := h.Svc.GetInfo(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "info", err)
		return
	}
	h.audit(c, fmt.Sprintf("Image info retrieved: size=%d type=%s client=%s",
		info.Size, info.ContentType, util.HashClientKey(c.ClientIP())))

	respond.OK(c, gin.H{
		"id":         info.ID,
		"size":       info.Size,
		"mime_type":  info.ContentType,
		"created_at": info.CreatedAt.Format(time.RFC3339),
		"chunks":     info.Chunks,
	})
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ImageIDKey, id)

	start := time.Now()
	err := h.Svc.DeleteObject(c.Request.Context(), id)
	metrics.ObserveDuration("delete", start)
	if err != nil {
		h.fail(c, "delete", err)
		return
	}
	h.audit(c, fmt.Sprintf("Image deleted by admin: client=%s", util.HashClientKey(c.ClientIP())))
	respond.NoContent(c)
}

func (h *Handler) tooLarge(c *gin.Context) {
	respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large",
		fmt.Sprintf("File exceeds the %d byte limit", h.cfg.MaxFileSize), gin.H{"max_size": h.cfg.MaxFileSize})
}

// detectType sniffs data and checks it against the allowed list and the
// type the client declared.
func (h *Handler) detectType(data []byte, declared string) (string, error) {
	detected := mimetype.Detect(data)

	allowed := false
	for _, t := range h.cfg.AllowedTypes {
		if detected.Is(t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("unsupported type %s", detected.String())
	}

	if mediaType, _, err := mime.ParseMediaType(declared); err == nil &&
		mediaType != "application/octet-stream" && !detected.Is(mediaType) {
		return "", fmt.Errorf("declared type %s does not match content %s", mediaType, detected.String())
	}

	contentType, _, _ := mime.ParseMediaType(detected.String())
	return contentType, nil
}

func (h *Handler) imageURL(id string) string {
	return h.cfg.PublicBaseURL + "/image/" + id
}

// fail maps a service error onto a response.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, code, message := Classify(err)
	metrics.IncObjectError(op, code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	var te *blob.TransportError
	if errors.As(err, &te) && te.RetryAfter > 0 && status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(int((te.RetryAfter+time.Second-1)/time.Second)))
	}
	if errors.Is(err, ErrInvalidInput) {
		message = err.Error()
	}
	respond.Error(c, status, code, message, nil)
}

// Classify returns the HTTP status, error code and client message for
// an error returned by Service or the job queue.
func Classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, publicid.ErrMalformedID):
		return http.StatusBadRequest, "invalid_id", "Invalid image id"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "validation_error", "Invalid upload"
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large", "File exceeds the storable size"
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "not_found", "Image not found"
	case errors.Is(err, cryptox.ErrUnsupportedVersion):
		return http.StatusUnprocessableEntity, "unsupported_version", "Image id uses an unsupported cipher"
	case errors.Is(err, cryptox.ErrIntegrity):
		return http.StatusUnprocessableEntity, "integrity_error", "Image id does not match stored data"
	case errors.Is(err, blob.ErrTruncated):
		return http.StatusBadGateway, "truncated", "Stored image is incomplete"
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full", "Upload queue is full, retry later"
	case errors.Is(err, blob.ErrTransient):
		return http.StatusServiceUnavailable, "storage_unavailable", "Storage backend unavailable, retry later"
	case errors.Is(err, blob.ErrPermanent):
		return http.StatusBadGateway, "storage_error", "Storage backend rejected the request"
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error"
	}
}

// audit posts text to the log chat without holding up the response.
func (h *Handler) audit(c *gin.Context, text string) {
	if h.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditTimeout)
	requestID := middleware.RequestIDFromContext(c)
	go func() {
		defer cancel()
		if err := h.Audit.SendLog(ctx, text); err != nil {
			telemetry.Warn("audit.failed", map[string]any{
				"request_id": requestID,
				"error":      err,
			})
		}
	}()
}

func isAsync(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
