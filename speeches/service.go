package speeches

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"chunkscribe/b3"
	"chunkscribe/jobs"
)

type (
	runner interface {
		Run(ctx context.Context, jobID, sourcePath string) error
	}

	// Service accepts uploads and runs each one as a background job.
	Service struct {
		store     jobs.Store
		runner    runner
		results   ResultStore
		uploadDir string
		wg        *sync.WaitGroup
	}
)

func NewService(store jobs.Store, r runner, results ResultStore, uploadDir string) Service {
	var wg sync.WaitGroup
	return Service{store: store, runner: r, results: results, uploadDir: uploadDir, wg: &wg}
}

// Wait blocks until every submitted job has reached a terminal state.
func (s Service) Wait() {
	s.wg.Wait()
}

// Submit stores the upload as {jobID}_{fileName}, creates the job and starts
// processing it. It returns as soon as the job exists.
func (s Service) Submit(ctx context.Context, fileName string, body io.Reader) (jobs.Job, error) {
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		return jobs.Job{}, fmt.Errorf("submit: invalid file name %q", fileName)
	}

	tmp, err := os.CreateTemp(s.uploadDir, "upload-*")
	if err != nil {
		return jobs.Job{}, fmt.Errorf("submit: creating upload file: %w", err)
	}
	_, hash, err := b3.CopyAndHash(tmp, body)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return jobs.Job{}, fmt.Errorf("submit: storing upload: %w", err)
	}

	job, err := s.store.Create(ctx, name, hash)
	if err != nil {
		os.Remove(tmp.Name())
		return jobs.Job{}, fmt.Errorf("submit: %w", err)
	}

	sourcePath := filepath.Join(s.uploadDir, job.ID+"_"+name)
	if err := os.Rename(tmp.Name(), sourcePath); err != nil {
		os.Remove(tmp.Name())
		err = fmt.Errorf("submit: placing upload: %w", err)
		if fErr := s.store.Fail(context.WithoutCancel(ctx), job.ID, err.Error()); fErr != nil {
			log.Printf("job %s: recording failure: %v", job.ID, fErr)
		}
		return jobs.Job{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.runner.Run(context.Background(), job.ID, sourcePath); err != nil {
			log.Printf("job %s: run: %v", job.ID, err)
		}
	}()

	log.Printf("job %s: accepted %s (%s)", job.ID, name, hash)
	return job, nil
}

func (s Service) Status(ctx context.Context, jobID string) (jobs.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("status: %w", err)
	}
	return job, nil
}

// Result returns the timeline of a completed job. Any other state yields
// ErrNotCompleted.
func (s Service) Result(ctx context.Context, jobID string) ([]AlignedSegment, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	if job.Status != jobs.StatusCompleted || job.ResultRef == "" {
		return nil, fmt.Errorf("result: job %s is %s: %w", jobID, job.Status, ErrNotCompleted)
	}

	segments, err := s.results.Load(ctx, job.ResultRef)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return segments, nil
}

// IsNotFound reports whether err came from an unknown job id.
func IsNotFound(err error) bool {
	return errors.Is(err, jobs.ErrNotFound)
}
