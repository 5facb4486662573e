package speeches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chunkscribe/audio"
)

var (
	ErrInputNotFound = audio.ErrInputNotFound
	ErrDecode        = audio.ErrDecode

	// ErrNotCompleted rejects result queries for jobs that did not complete.
	ErrNotCompleted = errors.New("transcription not completed")

	// ErrResultNotFound is returned when a completed job's result is gone.
	ErrResultNotFound = errors.New("result not found")
)

// CollaboratorError is a transcription or diarization failure on one chunk.
type CollaboratorError struct {
	Stage string // "transcribe" or "diarize"
	Chunk int
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("chunk processing error: %s chunk %d: %v", e.Stage, e.Chunk, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// ChunkTimeoutError reports a chunk that exceeded its processing deadline.
type ChunkTimeoutError struct {
	Chunk   int
	Timeout time.Duration
}

func (e *ChunkTimeoutError) Error() string {
	return fmt.Sprintf("processing timeout for chunk %d after %s", e.Chunk, e.Timeout)
}

func (e *ChunkTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
