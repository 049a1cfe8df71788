package jobs

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is an upload accepted for background storage.
type Job struct {
	ID          string     `json:"job_id"`
	Status      string     `json:"status"`
	ContentType string     `json:"mime_type"`
	Size        int64      `json:"size"`
	ClientHash  string     `json:"-"`
	ImageID     string     `json:"image_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
