package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "BLOB_BACKEND", "MAX_FILE_SIZE", "RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_BURST", "ALLOWED_IMAGE_TYPES", "CHUNK_SIZE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "3000" {
		t.Fatalf("expected default port 3000, got %q", cfg.Port)
	}
	if cfg.BlobBackend != "telegram" {
		t.Fatalf("expected telegram backend, got %q", cfg.BlobBackend)
	}
	if cfg.MaxFileSize != 10<<20 {
		t.Fatalf("expected 10MiB max file size, got %d", cfg.MaxFileSize)
	}
	if cfg.RateLimitPerMinute != 60 || cfg.RateLimitBurst != 60 {
		t.Fatalf("unexpected rate limit defaults: %d/%d", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	if len(cfg.AllowedImageTypes) != 4 {
		t.Fatalf("expected 4 allowed types, got %v", cfg.AllowedImageTypes)
	}
	if cfg.ChunkSize != 19<<20 {
		t.Fatalf("unexpected chunk size %d", cfg.ChunkSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "S3")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("UPLOAD_DELAY", "2")
	t.Setenv("TRANSPORT_BACKOFF_INITIAL", "250ms")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("ENV", "prod")

	cfg := Load()
	if cfg.BlobBackend != "s3" {
		t.Fatalf("expected s3, got %q", cfg.BlobBackend)
	}
	if cfg.TelegramChatID != -1001234 {
		t.Fatalf("unexpected chat id %d", cfg.TelegramChatID)
	}
	if cfg.UploadDelay != 2*time.Second {
		t.Fatalf("expected 2s delay, got %s", cfg.UploadDelay)
	}
	if cfg.BackoffInitial != 250*time.Millisecond {
		t.Fatalf("expected 250ms backoff, got %s", cfg.BackoffInitial)
	}
	if cfg.RateLimitBurst != 120 {
		t.Fatalf("burst should follow per-minute, got %d", cfg.RateLimitBurst)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected production, got %q", cfg.Env)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		EncryptionKey:      validKey(),
		CipherVersion:      1,
		BlobBackend:        "telegram",
		TelegramBotToken:   "123:abc",
		TelegramChatID:     -100,
		ChunkSize:          19 << 20,
		MaxFileSize:        10 << 20,
		RateLimitPerMinute: 60,
		Env:                "dev",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing key", mutate: func(c *Config) { c.EncryptionKey = "" }, want: "ENCRYPTION_KEY is required"},
		{name: "short key", mutate: func(c *Config) { c.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }, want: "32 bytes"},
		{name: "bad base64", mutate: func(c *Config) { c.EncryptionKey = "%%%" }, want: "not valid base64"},
		{name: "bad cipher", mutate: func(c *Config) { c.CipherVersion = 3 }, want: "CIPHER_VERSION"},
		{name: "no token", mutate: func(c *Config) { c.TelegramBotToken = "" }, want: "TELEGRAM_BOT_TOKEN"},
		{name: "no chat", mutate: func(c *Config) { c.TelegramChatID = 0 }, want: "TELEGRAM_CHAT_ID"},
		{name: "chunk too big", mutate: func(c *Config) { c.ChunkSize = 50 << 20 }, want: "CHUNK_SIZE"},
		{name: "too many chunks", mutate: func(c *Config) { c.ChunkSize = 100_000 }, want: "at most 64"},
		{name: "chunk count edge", mutate: func(c *Config) { c.MaxFileSize = 64*(19<<20) - 15 }, want: "needs 65 chunks"},
		{name: "s3 bucket", mutate: func(c *Config) { c.BlobBackend = "s3" }, want: "S3_BUCKET"},
		{name: "prod db", mutate: func(c *Config) { c.Env = "production" }, want: "DATABASE_URL"},
	}
	edge := base
	edge.MaxFileSize = 64*(19<<20) - 16
	if err := edge.Validate(); err != nil {
		t.Fatalf("64 sealed chunks should fit, got %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadEnvFilesDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport VAULT_TEST_A=\"from-file\"\nVAULT_TEST_B='file-b'\nbroken-line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("VAULT_TEST_B", "from-env")
	t.Setenv("VAULT_TEST_A", "")
	os.Unsetenv("VAULT_TEST_A")

	loadEnvFiles(path)
	t.Cleanup(func() { os.Unsetenv("VAULT_TEST_A") })

	if got := os.Getenv("VAULT_TEST_A"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("VAULT_TEST_B"); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
}
