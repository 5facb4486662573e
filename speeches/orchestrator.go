package speeches

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"chunkscribe/audio"
	"chunkscribe/jobs"
)

// DefaultChunkTimeout bounds the collaborator work on a single chunk.
const DefaultChunkTimeout = time.Hour

type (
	chunker interface {
		Split(ctx context.Context, sourcePath string) ([]audio.Chunk, error)
		Release(c audio.Chunk) error
		Sweep(stem string) int
	}

	// Orchestrator drives one job through its chunks, strictly in order.
	Orchestrator struct {
		store        jobs.Store
		chunks       chunker
		transcriber  Transcriber
		diarizer     Diarizer
		results      ResultStore
		bounds       SpeakerBounds
		chunkTimeout time.Duration
		removeFile   func(name string) error
	}

	OrchestratorConfig struct {
		Bounds       SpeakerBounds
		ChunkTimeout time.Duration
	}

	chunkResult struct {
		segments []AlignedSegment
		err      error
	}
)

func NewOrchestrator(
	store jobs.Store,
	chunks chunker,
	t Transcriber,
	d Diarizer,
	results ResultStore,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	if cfg.Bounds == (SpeakerBounds{}) {
		cfg.Bounds = DefaultSpeakerBounds
	}
	return &Orchestrator{
		store:        store,
		chunks:       chunks,
		transcriber:  t,
		diarizer:     d,
		results:      results,
		bounds:       cfg.Bounds,
		chunkTimeout: cfg.ChunkTimeout,
		removeFile:   os.Remove,
	}
}

// Run processes sourcePath for jobID until the job is terminal. Failures are
// recorded on the job rather than surfaced to the submitter; the returned
// error is for logging. The source file is removed once, whatever happens.
func (o *Orchestrator) Run(ctx context.Context, jobID, sourcePath string) (err error) {
	defer o.removeSource(jobID, sourcePath)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing error: panic: %v", r)
			o.fail(ctx, jobID, sourcePath, err)
		}
	}()

	timeline, err := o.process(ctx, jobID, sourcePath)
	if err != nil {
		err = fmt.Errorf("processing error: %w", err)
		o.fail(ctx, jobID, sourcePath, err)
		return err
	}

	ref, err := o.results.Save(ctx, jobID, timeline)
	if err != nil {
		err = fmt.Errorf("processing error: saving result: %w", err)
		o.fail(ctx, jobID, sourcePath, err)
		return err
	}
	if err := o.store.Complete(ctx, jobID, ref); err != nil {
		if dErr := o.results.Discard(ctx, ref); dErr != nil {
			log.Printf("job %s: discard result %s: %v", jobID, ref, dErr)
		}
		err = fmt.Errorf("processing error: completing job: %w", err)
		o.fail(ctx, jobID, sourcePath, err)
		return err
	}

	log.Printf("job %s: completed with %d segments", jobID, len(timeline))
	return nil
}

// process splits the source and folds its chunks into one timeline.
func (o *Orchestrator) process(ctx context.Context, jobID, sourcePath string) ([]AlignedSegment, error) {
	chunks, err := o.chunks.Split(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if err := o.store.SetTotalChunks(ctx, jobID, len(chunks)); err != nil {
		return nil, err
	}

	return foldChunks(chunks, []AlignedSegment{}, func(timeline []AlignedSegment, c audio.Chunk) ([]AlignedSegment, error) {
		aligned, err := o.processChunk(ctx, c)
		if err != nil {
			return nil, err
		}
		timeline = append(timeline, Shift(aligned, c.Offset())...)

		if err := o.chunks.Release(c); err != nil {
			return nil, err
		}
		if err := o.store.Advance(ctx, jobID, c.Index+1); err != nil {
			return nil, err
		}
		log.Printf("job %s: %s done, %d segments so far", jobID, c, len(timeline))
		return timeline, nil
	})
}

// foldChunks applies step to every chunk in order, stopping at the first error.
func foldChunks[A any](chunks []audio.Chunk, acc A, step func(A, audio.Chunk) (A, error)) (A, error) {
	for _, c := range chunks {
		var err error
		if acc, err = step(acc, c); err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// processChunk runs transcribe, diarize and align under one deadline. The
// work runs in its own goroutine so a collaborator that ignores ctx still
// times out.
func (o *Orchestrator) processChunk(ctx context.Context, c audio.Chunk) ([]AlignedSegment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.chunkTimeout)
	defer cancel()

	done := make(chan chunkResult, 1)
	go func() {
		done <- o.alignChunk(ctx, c)
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ChunkTimeoutError{Chunk: c.Index, Timeout: o.chunkTimeout}
		}
		return r.segments, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ChunkTimeoutError{Chunk: c.Index, Timeout: o.chunkTimeout}
		}
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) alignChunk(ctx context.Context, c audio.Chunk) (res chunkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = chunkResult{err: fmt.Errorf("chunk processing error: chunk %d: panic: %v", c.Index, r)}
		}
	}()

	segments, err := o.transcriber.Transcribe(ctx, c.Path)
	if err != nil {
		return chunkResult{err: &CollaboratorError{Stage: "transcribe", Chunk: c.Index, Err: err}}
	}
	turns, err := o.diarizer.Diarize(ctx, c.Path, o.bounds)
	if err != nil {
		return chunkResult{err: &CollaboratorError{Stage: "diarize", Chunk: c.Index, Err: err}}
	}
	return chunkResult{segments: Align(segments, turns)}
}

// fail sweeps leftover chunk artifacts and records err on the job.
func (o *Orchestrator) fail(ctx context.Context, jobID, sourcePath string, err error) {
	ctx = context.WithoutCancel(ctx)
	if n := o.chunks.Sweep(audio.Stem(sourcePath)); n > 0 {
		log.Printf("job %s: swept %d chunk artifacts", jobID, n)
	}
	if fErr := o.store.Fail(ctx, jobID, err.Error()); fErr != nil {
		log.Printf("job %s: recording failure: %v", jobID, fErr)
	}
	log.Printf("job %s: %v", jobID, err)
}

func (o *Orchestrator) removeSource(jobID, sourcePath string) {
	if err := o.removeFile(sourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("job %s: removing source %s: %v", jobID, sourcePath, err)
	}
}
