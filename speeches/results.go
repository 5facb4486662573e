package speeches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type (
	// ResultStore persists one job's final timeline exactly once.
	ResultStore interface {
		Save(ctx context.Context, jobID string, segments []AlignedSegment) (ref string, err error)
		Load(ctx context.Context, ref string) ([]AlignedSegment, error)
		Discard(ctx context.Context, ref string) error
	}

	// FileResults writes each timeline as {jobID}_transcript.json in dir.
	FileResults struct {
		dir string
	}
)

var _ ResultStore = FileResults{}

func NewFileResults(dir string) FileResults {
	return FileResults{dir: dir}
}

// ResultFileName is the artifact name for a job's result.
func ResultFileName(jobID string) string {
	return jobID + "_transcript.json"
}

// Save refuses to overwrite an existing artifact.
func (r FileResults) Save(ctx context.Context, jobID string, segments []AlignedSegment) (string, error) {
	if segments == nil {
		segments = []AlignedSegment{}
	}
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	path := filepath.Join(r.dir, ResultFileName(jobID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating result file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing result file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing result file: %w", err)
	}
	return path, nil
}

func (r FileResults) Load(ctx context.Context, ref string) ([]AlignedSegment, error) {
	f, err := os.Open(ref)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer f.Close()

	var segments []AlignedSegment
	if err := json.NewDecoder(f).Decode(&segments); err != nil {
		return nil, fmt.Errorf("decoding result file: %w", err)
	}
	return segments, nil
}

func (r FileResults) Discard(ctx context.Context, ref string) error {
	if err := os.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing result file: %w", err)
	}
	return nil
}
