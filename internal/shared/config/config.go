package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"image-vault/internal/blob"
	"image-vault/internal/cryptox"
	"image-vault/internal/publicid"
)

// Blob backends selectable with BLOB_BACKEND.
const (
	BackendTelegram = "telegram"
	BackendS3       = "s3"
	BackendLocal    = "local"
	BackendMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	PublicBaseURL   string

	EncryptionKey string
	CipherVersion int

	BlobBackend       string
	TelegramBotToken  string
	TelegramChatID    int64
	TelegramLogChatID int64
	TelegramAPIURL    string
	LocalStoreDir     string
	AWSRegion         string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	SSEKMSKeyID       string

	ChunkSize            int
	TransportMaxAttempts int
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	FetchConcurrency     int

	MaxFileSize       int64
	AllowedImageTypes []string

	RateLimitPerMinute  int
	RateLimitBurst      int
	RateLimitStaleAfter time.Duration

	AdminSecret string
	DatabaseURL string

	UploadWorkers   int
	UploadQueueSize int
	UploadDelay     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	perMinute := getInt("RATE_LIMIT_PER_MINUTE", 60)

	return Config{
		Port:            getEnv("PORT", "3000"),
		Env:             normalizeEnv(getEnv("ENV", "dev")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		CipherVersion: getInt("CIPHER_VERSION", 1),

		BlobBackend:       normalizeBackend(getEnv("BLOB_BACKEND", BackendTelegram)),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    getInt64("TELEGRAM_CHAT_ID", 0),
		TelegramLogChatID: getInt64("TELEGRAM_LOG_CHAT_ID", 0),
		TelegramAPIURL:    getEnv("TELEGRAM_API_URL", ""),
		LocalStoreDir:     getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:         getEnv("AWS_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Prefix:          getEnv("S3_PREFIX", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
		SSEKMSKeyID:       getEnv("SSE_KMS_KEY_ID", ""),

		ChunkSize:            getInt("CHUNK_SIZE", 19<<20),
		TransportMaxAttempts: getInt("TRANSPORT_MAX_ATTEMPTS", 4),
		BackoffInitial:       getDuration("TRANSPORT_BACKOFF_INITIAL", 500*time.Millisecond),
		BackoffMax:           getDuration("TRANSPORT_BACKOFF_MAX", 10*time.Second),
		FetchConcurrency:     getInt("FETCH_CONCURRENCY", 4),

		MaxFileSize:       getInt64("MAX_FILE_SIZE", 10<<20),
		AllowedImageTypes: splitAndTrim(getEnv("ALLOWED_IMAGE_TYPES", "image/jpeg,image/png,image/gif,image/webp")),

		RateLimitPerMinute:  perMinute,
		RateLimitBurst:      getInt("RATE_LIMIT_BURST", perMinute),
		RateLimitStaleAfter: getDuration("RATE_LIMIT_STALE_AFTER", 5*time.Minute),

		AdminSecret: os.Getenv("ADMIN_SECRET"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		UploadWorkers:   getInt("UPLOAD_WORKERS", 2),
		UploadQueueSize: getInt("UPLOAD_QUEUE_SIZE", 100),
		UploadDelay:     getDuration("UPLOAD_DELAY", 0),
	}
}

// Validate reports every setting that would stop the service from
// starting.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.EncryptionKeyBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.CipherVersion != 1 && c.CipherVersion != 2 {
		errs = append(errs, fmt.Errorf("CIPHER_VERSION must be 1 or 2, got %d", c.CipherVersion))
	}
	switch c.BlobBackend {
	case BackendTelegram:
		if c.TelegramBotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
		}
		if c.TelegramChatID == 0 {
			errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required"))
		}
		if c.ChunkSize > 20<<20 {
			errs = append(errs, errors.New("CHUNK_SIZE must not exceed 20 MiB with the telegram backend"))
		}
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required"))
		}
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if c.ChunkSize > 0 && c.MaxFileSize > 0 {
		if n := maxChunkCount(c.MaxFileSize, c.ChunkSize); n > publicid.MaxChunks {
			errs = append(errs, fmt.Errorf("MAX_FILE_SIZE / CHUNK_SIZE needs %d chunks, at most %d fit in an id", n, publicid.MaxChunks))
		}
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.Env == "production" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	return errors.Join(errs...)
}

// maxChunkCount returns how many chunks the largest accepted upload
// occupies once sealed.
func maxChunkCount(maxFileSize int64, chunkSize int) int64 {
	if maxFileSize > math.MaxInt-cryptox.Overhead {
		return math.MaxInt64
	}
	return int64(blob.ChunkCount(int(maxFileSize)+cryptox.Overhead, chunkSize))
}

// EncryptionKeyBytes decodes ENCRYPTION_KEY, a standard base64 string
// holding exactly 32 bytes.
func (c Config) EncryptionKeyBytes() ([]byte, error) {
	raw := strings.TrimSpace(c.EncryptionKey)
	if raw == "" {
		return nil, errors.New("ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return def
}

// getDuration accepts Go durations ("750ms") or plain seconds ("2").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeBackend(raw string) string {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case BackendS3, BackendLocal, BackendMemory:
		return v
	default:
		return BackendTelegram
	}
}
