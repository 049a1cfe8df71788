package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsReachLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := L()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	Info("image.upload", map[string]any{"size": 42, "mime_type": "image/png"})
	Error("http.error", map[string]any{"err": errors.New("boom"), "status": 500})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "image.upload" || entries[0].ContextMap()["size"] != int64(42) {
		t.Fatalf("unexpected info entry: %+v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["err"] != "boom" {
		t.Fatalf("unexpected error entry: %+v", entries[1].ContextMap())
	}
}

func TestInitFallsBackToInfo(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetLogger(prev) })

	for _, level := range []string{"", "debug", "WARN", "bogus"} {
		if err := Init(level); err != nil {
			t.Fatalf("Init(%q): %v", level, err)
		}
	}
}
