package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"image-vault/internal/ratelimit"
	"image-vault/internal/services/health"
	"image-vault/internal/shared/config"
	"image-vault/internal/shared/server/respond"
)

func newTestRouter(t *testing.T, perMinute int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := health.NewService("test")
	svc.Register("blob", health.PingFunc(func(context.Context) error { return nil }))
	return NewRouter(RouterDeps{
		Config:        config.Config{CORSAllowOrigin: []string{"*"}, MaxFileSize: 1 << 20},
		Limiter:       ratelimit.New(ratelimit.PerMinute(perMinute), nil),
		HealthHandler: health.NewHandler(svc),
	})
}

func TestAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":3000",
		"8080":  ":8080",
		":9090": ":9090",
	}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	r := newTestRouter(t, 60)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var body respond.ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "not_found" {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthAndMetricsAreNotRateLimited(t *testing.T) {
	r := newTestRouter(t, 1)

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("health request %d: expected 200, got %d", i, resp.Code)
		}
	}

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/nope", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is spent, got %d", second.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, 60)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "image_vault_") {
		t.Fatalf("expected image_vault metrics in exposition")
	}
}

func TestAdminRoutesAbsentWithoutImageHandler(t *testing.T) {
	r := newTestRouter(t, 60)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/admin/image/x", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
