package jobs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := Job{
		ID:          "job-1",
		Status:      StatusQueued,
		ContentType: "image/png",
		Size:        42,
		ClientHash:  "abcdef012345",
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO upload_jobs").
		WithArgs(job.ID, job.Status, job.ContentType, job.Size, job.ClientHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	completed := created.Add(3 * time.Second)

	rows := sqlmock.NewRows([]string{
		"id", "status", "content_type", "size_bytes", "client_hash", "image_id", "error_message",
		"created_at", "started_at", "completed_at",
	}).AddRow("job-1", StatusCompleted, "image/png", int64(42), "abc", "public-id", nil, created, created, completed)
	mock.ExpectQuery("SELECT id, status, content_type").WithArgs("job-1").WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusCompleted || job.ImageID != "public-id" || job.Error != "" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(completed) {
		t.Fatalf("unexpected completed_at: %v", job.CompletedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, status, content_type").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	done := time.Now().UTC()
	job := Job{ID: "job-1", Status: StatusFailed, Error: "upload failed", CompletedAt: &done}

	mock.ExpectExec("UPDATE upload_jobs").
		WithArgs(job.ID, job.Status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE upload_jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Update(context.Background(), Job{ID: "gone"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
