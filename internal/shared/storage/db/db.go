// Package db opens the Postgres database that records upload jobs and
// applies its schema. Image bytes and metadata never touch it; a lost
// database costs only the status of in-flight async uploads.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"image-vault/internal/shared/telemetry"
)

const defaultPingTimeout = 5 * time.Second

// Pool sizes the connection pool behind the upload_jobs table.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

var openDB = sql.Open

// JobStorePool suits the API process: each async upload writes its row
// at most three times (queued, processing, finished) and job polls are
// single-row reads, so a few connections serve the whole worker pool.
func JobStorePool() Pool {
	return Pool{
		MaxOpen:     8,
		MaxIdle:     4,
		MaxLifetime: time.Hour,
		MaxIdleTime: 2 * time.Minute,
		PingTimeout: defaultPingTimeout,
	}
}

// MigratePool suits cmd/migrate, which holds one connection for goose.
func MigratePool() Pool {
	return Pool{
		MaxOpen:     1,
		MaxIdle:     1,
		MaxLifetime: time.Hour,
		PingTimeout: defaultPingTimeout,
	}
}

// FromEnv returns p with any DB_* overrides applied. Unparseable values
// are logged and ignored.
func (p Pool) FromEnv() Pool {
	envInt("DB_MAX_OPEN_CONNS", &p.MaxOpen)
	envInt("DB_MAX_IDLE_CONNS", &p.MaxIdle)
	envDuration("DB_CONN_MAX_LIFETIME", &p.MaxLifetime)
	envDuration("DB_CONN_MAX_IDLE_TIME", &p.MaxIdleTime)
	envDuration("DB_PING_TIMEOUT", &p.PingTimeout)
	return p
}

// Open connects to the job database at databaseURL and pings it. The
// returned handle is shared by the job repository and health checks.
func Open(ctx context.Context, databaseURL string, p Pool) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	p.apply(db)

	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping job database: %w", err)
	}

	stats := db.Stats()
	telemetry.Info("db.open", map[string]any{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return db, nil
}

func (p Pool) apply(db *sql.DB) {
	def := JobStorePool()
	if p.MaxOpen <= 0 {
		p.MaxOpen = def.MaxOpen
	}
	if p.MaxIdle <= 0 {
		p.MaxIdle = def.MaxIdle
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = def.MaxLifetime
	}
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)
	if p.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.MaxIdleTime)
	}
}

func envInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		telemetry.Warn("db.env_invalid", map[string]any{"key": key, "error": err})
		return
	}
	*dst = v
}

func envDuration(key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		telemetry.Warn("db.env_invalid", map[string]any{"key": key, "error": err})
		return
	}
	*dst = v
}
