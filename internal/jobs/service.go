package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"image-vault/internal/shared/metrics"
	"image-vault/internal/shared/telemetry"
	"image-vault/internal/shared/util"
)

const (
	defaultWorkers    = 2
	defaultQueueSize  = 100
	defaultJobTimeout = 5 * time.Minute
)

// Storer stores one object and returns its public id. Implemented by
// *images.Service.
type Storer interface {
	PutObject(ctx context.Context, payload []byte, contentType string) (string, error)
}

// Config sizes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	// Delay spaces consecutive uploads of one worker.
	Delay      time.Duration
	JobTimeout time.Duration
}

type task struct {
	id          string
	payload     []byte
	contentType string
}

// Service queues uploads and stores them on a fixed pool of workers.
type Service struct {
	Repo  Repo
	Store Storer
	Now   func() time.Time
	NewID func() string

	cfg   Config
	queue chan task
}

// NewService constructs a Service with a bounded queue.
func NewService(repo Repo, store Storer, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Service{
		Repo:  repo,
		Store: store,
		cfg:   cfg,
		queue: make(chan task, cfg.QueueSize),
	}
}

// Submit records a queued job and hands payload to the workers. It
// returns ErrQueueFull without blocking when the queue is saturated.
func (s *Service) Submit(ctx context.Context, payload []byte, contentType, clientIP string) (Job, error) {
	job := Job{
		ID:          s.newID(),
		Status:      StatusQueued,
		ContentType: contentType,
		Size:        int64(len(payload)),
		ClientHash:  util.HashClientKey(clientIP),
		CreatedAt:   s.now(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}

	select {
	case s.queue <- task{id: job.ID, payload: payload, contentType: contentType}:
		return job, nil
	default:
	}

	s.finish(ctx, job, "", ErrQueueFull)
	return Job{}, ErrQueueFull
}

// Get returns the current state of a job.
func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	return s.Repo.GetByID(ctx, id)
}

// Run drains the queue until ctx is cancelled. Jobs already taken by a
// worker are finished before Run returns; jobs still queued are marked
// failed, since their payload lives only in memory.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	s.abandonQueued(context.WithoutCancel(ctx))
}

func (s *Service) abandonQueued(ctx context.Context) {
	for {
		select {
		case t := <-s.queue:
			job, err := s.Repo.GetByID(ctx, t.id)
			if err != nil {
				telemetry.Error("upload_job.lookup_failed", map[string]any{"job_id": t.id, "error": err})
				continue
			}
			s.finish(ctx, job, "", ErrShuttingDown)
			telemetry.Warn("upload_job.abandoned", map[string]any{"job_id": t.id})
		default:
			return
		}
	}
}

func (s *Service) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.process(ctx, worker, t)
			if s.cfg.Delay > 0 {
				timer := time.NewTimer(s.cfg.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
	}
}

func (s *Service) process(ctx context.Context, worker int, t task) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.JobTimeout)
	defer cancel()

	job, err := s.Repo.GetByID(jobCtx, t.id)
	if err != nil {
		telemetry.Error("upload_job.lookup_failed", map[string]any{"job_id": t.id, "worker": worker, "error": err})
		return
	}
	started := s.now()
	job.Status = StatusProcessing
	job.StartedAt = &started
	if err := s.Repo.Update(jobCtx, job); err != nil {
		telemetry.Error("upload_job.update_failed", map[string]any{"job_id": t.id, "error": err})
	}

	id, err := s.Store.PutObject(jobCtx, t.payload, t.contentType)
	s.finish(jobCtx, job, id, err)

	fields := map[string]any{
		"job_id":      job.ID,
		"worker":      worker,
		"size":        job.Size,
		"duration_ms": s.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err
		telemetry.Error("upload_job.failed", fields)
		return
	}
	telemetry.Info("upload_job.completed", fields)
}

// finish records the terminal state of job.
func (s *Service) finish(ctx context.Context, job Job, imageID string, cause error) {
	done := s.now()
	job.CompletedAt = &done
	if cause != nil {
		job.Status = StatusFailed
		job.Error = failureMessage(cause)
	} else {
		job.Status = StatusCompleted
		job.ImageID = imageID
	}
	metrics.IncUploadJob(job.Status)
	if err := s.Repo.Update(context.WithoutCancel(ctx), job); err != nil {
		telemetry.Error("upload_job.update_failed", map[string]any{"job_id": job.ID, "error": err})
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "upload queue full"
	case errors.Is(err, ErrShuttingDown):
		return "server shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return "upload timed out"
	default:
		return "upload failed: " + err.Error()
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
