package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"image-vault/internal/blob"
	"image-vault/internal/blob/local"
	"image-vault/internal/blob/memory"
	s3store "image-vault/internal/blob/s3"
	"image-vault/internal/blob/telegram"
	"image-vault/internal/cryptox"
	"image-vault/internal/images"
	"image-vault/internal/jobs"
	"image-vault/internal/ratelimit"
	"image-vault/internal/services/health"
	"image-vault/internal/shared/config"
	"image-vault/internal/shared/metrics"
	"image-vault/internal/shared/server"
	"image-vault/internal/shared/storage/db"
	"image-vault/internal/shared/telemetry"
)

// Version is reported by /health. Overridden at link time.
var Version = "dev"

// Backend is a chunk transport that can also report reachability.
type Backend interface {
	blob.Transport
	health.Pinger
}

// App holds shared dependencies.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	Backend       Backend
	Blobs         *blob.Adapter
	Limiter       *ratelimit.Limiter
	ImagesService *images.Service
	JobsService   *jobs.Service
	Health        *health.Service
}

// Build prepares every dependency and the router. The caller runs the
// job workers with App.JobsService.Run.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	codec, err := buildCipher(cfg)
	if err != nil {
		return nil, err
	}

	backend, audit, err := buildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	adapter := blob.New(backend, blob.Options{
		ChunkSize:        cfg.ChunkSize,
		MaxAttempts:      cfg.TransportMaxAttempts,
		InitialBackoff:   cfg.BackoffInitial,
		MaxBackoff:       cfg.BackoffMax,
		FetchConcurrency: cfg.FetchConcurrency,
		OnRetry:          logRetry,
	})

	imageSvc := &images.Service{Cipher: codec, Blobs: adapter}

	var jobRepo jobs.Repo
	if sqlDB != nil {
		jobRepo = &jobs.PGRepo{DB: sqlDB}
	} else {
		jobRepo = jobs.NewMemoryRepo()
	}
	jobSvc := jobs.NewService(jobRepo, imageSvc, jobs.Config{
		Workers:   cfg.UploadWorkers,
		QueueSize: cfg.UploadQueueSize,
		Delay:     cfg.UploadDelay,
	})

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:   float64(cfg.RateLimitBurst),
		RefillRate: float64(cfg.RateLimitPerMinute) / 60,
		StaleAfter: cfg.RateLimitStaleAfter,
	}, nil)

	healthSvc := health.NewService(Version)
	healthSvc.Register("blob", backend)
	if sqlDB != nil {
		healthSvc.Register("database", health.PingFunc(sqlDB.PingContext))
	}

	var notifier images.Notifier
	if audit != nil {
		notifier = audit
	}

	app := &App{
		Config:        cfg,
		DB:            sqlDB,
		Backend:       backend,
		Blobs:         adapter,
		Limiter:       limiter,
		ImagesService: imageSvc,
		JobsService:   jobSvc,
		Health:        healthSvc,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:  cfg,
		Limiter: limiter,
		ImageHandler: images.NewHandler(imageSvc, jobSvc, notifier, images.HandlerConfig{
			MaxFileSize:   cfg.MaxFileSize,
			AllowedTypes:  cfg.AllowedImageTypes,
			PublicBaseURL: cfg.PublicBaseURL,
		}),
		JobHandler:    jobs.NewHandler(jobSvc, cfg.PublicBaseURL),
		HealthHandler: health.NewHandler(healthSvc),
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"backend":    cfg.BlobBackend,
		"cipher":     codec.Version().String(),
		"chunk_size": adapter.ChunkSize(),
		"database":   sqlDB != nil,
		"checks":     healthSvc.Names(),
	})
	return app, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func buildCipher(cfg config.Config) (*cryptox.Codec, error) {
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	codec, err := cryptox.New(key, cryptox.WithVersion(cryptox.Version(cfg.CipherVersion)))
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	return codec, nil
}

// buildBackend returns the chunk transport for cfg and, for Telegram, the
// client that also posts audit lines.
func buildBackend(ctx context.Context, cfg config.Config) (Backend, *telegram.Client, error) {
	switch cfg.BlobBackend {
	case config.BackendTelegram:
		client, err := telegram.New(telegram.Config{
			Token:     cfg.TelegramBotToken,
			ChatID:    cfg.TelegramChatID,
			LogChatID: cfg.TelegramLogChatID,
			APIURL:    cfg.TelegramAPIURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build telegram backend: %w", err)
		}
		if cfg.TelegramLogChatID == 0 {
			return client, nil, nil
		}
		return client, client, nil
	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Config{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			KMSKeyID:  cfg.SSEKMSKeyID,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build s3 backend: %w", err)
		}
		return store, nil, nil
	case config.BackendLocal:
		store, err := local.New(cfg.LocalStoreDir)
		if err != nil {
			return nil, nil, fmt.Errorf("build local backend: %w", err)
		}
		return store, nil, nil
	case config.BackendMemory:
		telemetry.Warn("bootstrap.memory_backend", map[string]any{"note": "objects are lost on restart"})
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_jobs", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required outside dev")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.JobStorePool().FromEnv())
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			sqlDB.Close()
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_jobs", map[string]any{"reason": "database unavailable", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func logRetry(op string, attempt int, err error) {
	metrics.IncTransportRetry(op)
	telemetry.Warn("blob.retry", map[string]any{
		"op":      op,
		"attempt": attempt,
		"error":   err,
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
