package jobs

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO upload_jobs (id, status, content_type, size_bytes, client_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.ContentType,
		job.Size,
		job.ClientHash,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Job, error) {
	const query = `
SELECT id, status, content_type, size_bytes, client_hash, image_id, error_message,
       created_at, started_at, completed_at
FROM upload_jobs
WHERE id = $1
LIMIT 1`
	var j Job
	var imageID sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&j.ID,
		&j.Status,
		&j.ContentType,
		&j.Size,
		&j.ClientHash,
		&imageID,
		&errorMessage,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	j.ImageID = imageID.String
	j.Error = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	return j, nil
}

// Update writes the mutable fields of a job.
func (r *PGRepo) Update(ctx context.Context, job Job) error {
	const query = `
UPDATE upload_jobs
SET status = $2, image_id = $3, error_message = $4, started_at = $5, completed_at = $6, updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		nullString(job.ImageID),
		nullString(job.Error),
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
