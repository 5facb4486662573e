// Package audio splits a long recording into bounded, purely time-based
// chunks materialised as WAV files for the model collaborators.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxChunkDuration bounds each chunk handed to the collaborators.
const DefaultMaxChunkDuration = 10 * time.Minute

var (
	// ErrInputNotFound is returned when the source file is missing.
	ErrInputNotFound = errors.New("input audio not found")

	// ErrDecode is returned when the source cannot be probed or cut.
	ErrDecode = errors.New("audio decode error")
)

// Chunk is one slice of the source audio. Start is always
// Index * max chunk duration; only the last chunk may be shorter.
type Chunk struct {
	Index    int
	Start    time.Duration
	Duration time.Duration
	Path     string
}

// Offset returns the chunk's start in seconds on the source timeline.
func (c Chunk) Offset() float64 {
	return c.Start.Seconds()
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d: %s+%s", c.Index, c.Start, c.Duration)
}

// Plan lays out ceil(total/max) contiguous chunks covering total. At least
// one chunk is always returned, even for empty or very short audio.
func Plan(total, max time.Duration) []Chunk {
	if max <= 0 {
		max = DefaultMaxChunkDuration
	}
	if total < 0 {
		total = 0
	}

	n := int(total / max)
	if total%max != 0 || n == 0 {
		n++
	}

	chunks := make([]Chunk, n)
	for i := range chunks {
		start := time.Duration(i) * max
		chunks[i] = Chunk{
			Index:    i,
			Start:    start,
			Duration: min(max, total-start),
		}
	}
	return chunks
}
