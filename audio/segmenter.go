package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Segmenter probes a source file and materialises its chunks on disk.
type Segmenter struct {
	ffmpegPath  string
	ffprobePath string
	dir         string
	maxDuration time.Duration
	runner      Runner
	stat        func(name string) (os.FileInfo, error)
	remove      func(name string) error
	readDir     func(name string) ([]os.DirEntry, error)
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithRunner replaces the ffmpeg/ffprobe command runner.
func WithRunner(r Runner) Option {
	return func(s *Segmenter) {
		s.runner = r
	}
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpegPath, ffprobePath string) Option {
	return func(s *Segmenter) {
		if ffmpegPath != "" {
			s.ffmpegPath = ffmpegPath
		}
		if ffprobePath != "" {
			s.ffprobePath = ffprobePath
		}
	}
}

// NewSegmenter writes chunk artifacts into dir, each at most maxDuration long.
func NewSegmenter(dir string, maxDuration time.Duration, opts ...Option) *Segmenter {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxChunkDuration
	}
	s := &Segmenter{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		dir:         dir,
		maxDuration: maxDuration,
		runner:      ExecRunner{},
		stat:        os.Stat,
		remove:      os.Remove,
		readDir:     os.ReadDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split probes sourcePath and extracts every planned chunk. On failure the
// chunks already written are swept before returning.
func (s *Segmenter) Split(ctx context.Context, sourcePath string) ([]Chunk, error) {
	if _, err := s.stat(sourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, sourcePath)
		}
		return nil, fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	res, err := s.runner.Run(ctx, s.ffprobePath, buildProbeArgs(sourcePath)...)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrDecode, filepath.Base(sourcePath), err, strings.TrimSpace(res.Stderr))
	}
	total, err := parseProbeDuration(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(sourcePath), err)
	}

	stem := Stem(sourcePath)
	chunks := Plan(total, s.maxDuration)
	for i := range chunks {
		chunks[i].Path = filepath.Join(s.dir, ChunkName(i, stem))
		args := buildExtractArgs(sourcePath, chunks[i].Path, chunks[i].Start, chunks[i].Duration)
		if res, err := s.runner.Run(ctx, s.ffmpegPath, args...); err != nil {
			s.Sweep(stem)
			return nil, fmt.Errorf("%w: extract %s: %v: %s", ErrDecode, chunks[i], err, strings.TrimSpace(res.Stderr))
		}
	}

	log.Printf("split %s into %d chunks of at most %s", filepath.Base(sourcePath), len(chunks), s.maxDuration)
	return chunks, nil
}

// Release deletes one chunk's artifact. A missing file is not an error.
func (s *Segmenter) Release(c Chunk) error {
	if err := s.remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", c.Path, err)
	}
	return nil
}

// Sweep deletes every chunk artifact derived from stem and reports how many
// were removed. Errors are logged, not returned.
func (s *Segmenter) Sweep(stem string) int {
	entries, err := s.readDir(s.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("sweep chunks for %s: %v", stem, err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsChunkOf(entry.Name(), stem) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := s.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("sweep chunk %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}

// Stem is the source base name without extension; chunk names embed it.
func Stem(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ChunkName is the artifact name for chunk index of a source with stem.
func ChunkName(index int, stem string) string {
	return "chunk_" + strconv.Itoa(index) + "_" + stem + ".wav"
}

// IsChunkOf reports whether name was produced by ChunkName for stem.
func IsChunkOf(name, stem string) bool {
	rest, ok := strings.CutPrefix(name, "chunk_")
	if !ok {
		return false
	}
	idx, ok := strings.CutSuffix(rest, "_"+stem+".wav")
	if !ok || idx == "" {
		return false
	}
	_, err := strconv.Atoi(idx)
	return err == nil
}
