package speeches

import "context"

type (
	// Transcriber turns one chunk file into segments ordered by start.
	Transcriber interface {
		Transcribe(ctx context.Context, chunkPath string) ([]Segment, error)
	}

	// Diarizer returns the speaker turns of one chunk file in no particular
	// order.
	Diarizer interface {
		Diarize(ctx context.Context, chunkPath string, bounds SpeakerBounds) ([]SpeakerTurn, error)
	}

	SpeakerBounds struct {
		Min int
		Max int
	}
)

// DefaultSpeakerBounds are passed to the diarizer when none are configured.
var DefaultSpeakerBounds = SpeakerBounds{Min: 1, Max: 5}
