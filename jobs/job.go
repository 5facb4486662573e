// Package jobs holds transcription job records and the stores that keep
// them. A job is written by exactly one orchestrator goroutine and read
// concurrently by status queries, so every store applies mutations
// atomically with respect to reads.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle stage of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a mutation does not fit the
	// job's current state.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Job is a snapshot of one submitted file's processing state.
type Job struct {
	ID              string     `json:"job_id"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	FileName        string     `json:"file_name"`
	SourceHash      string     `json:"source_hash,omitempty"`
	ResultRef       string     `json:"result_file,omitempty"`
	Error           string     `json:"error,omitempty"`
	Progress        float64    `json:"progress"`
	TotalChunks     *int       `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
}

// IsTerminal reports whether the job can no longer change.
func (j Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// maxRunningProgress keeps progress below 100 until the job completes.
var maxRunningProgress = decimal.RequireFromString("99.99")

// Progress returns processed/total as a percentage rounded to two places.
// A running job never reports 100; only Complete does.
func Progress(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := decimal.NewFromInt(int64(processed)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	if p.GreaterThan(maxRunningProgress) {
		p = maxRunningProgress
	}
	f, _ := p.Float64()
	return f
}

// newJob builds the record returned on submission.
func newJob(id, fileName, sourceHash string, now time.Time) Job {
	return Job{
		ID:         id,
		Status:     StatusProcessing,
		CreatedAt:  now.UTC(),
		FileName:   fileName,
		SourceHash: sourceHash,
	}
}

// setTotalChunks records the chunk count once segmentation is done.
func (j *Job) setTotalChunks(n int) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: set total chunks on %s job", ErrInvalidTransition, j.Status)
	}
	if n < 1 {
		return fmt.Errorf("%w: total chunks must be positive, got %d", ErrInvalidTransition, n)
	}
	if j.TotalChunks != nil && *j.TotalChunks != n {
		return fmt.Errorf("%w: total chunks already set to %d", ErrInvalidTransition, *j.TotalChunks)
	}
	j.TotalChunks = &n
	return nil
}

// advance moves processed chunks forward and recomputes progress.
func (j *Job) advance(processed int) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: advance %s job", ErrInvalidTransition, j.Status)
	}
	if j.TotalChunks == nil {
		return fmt.Errorf("%w: advance before total chunks is known", ErrInvalidTransition)
	}
	if processed < j.ProcessedChunks || processed > *j.TotalChunks {
		return fmt.Errorf("%w: processed chunks %d outside [%d, %d]",
			ErrInvalidTransition, processed, j.ProcessedChunks, *j.TotalChunks)
	}
	j.ProcessedChunks = processed
	j.Progress = Progress(processed, *j.TotalChunks)
	return nil
}

// complete moves a processing job to completed with progress 100.
func (j *Job) complete(resultRef string, now time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	if j.TotalChunks == nil {
		return fmt.Errorf("%w: complete before total chunks is known", ErrInvalidTransition)
	}
	if left := *j.TotalChunks - j.ProcessedChunks; left != 0 {
		return fmt.Errorf("%w: complete with %d unprocessed chunks", ErrInvalidTransition, left)
	}
	at := now.UTC()
	j.Status = StatusCompleted
	j.ResultRef = resultRef
	j.Progress = 100
	j.CompletedAt = &at
	return nil
}

// fail moves a queued or processing job to failed, keeping its progress.
func (j *Job) fail(message string, now time.Time) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	at := now.UTC()
	j.Status = StatusFailed
	j.Error = message
	j.CompletedAt = &at
	return nil
}
