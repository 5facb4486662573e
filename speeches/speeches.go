package speeches

type (
	Word struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}

	// Segment is one transcript segment in chunk-local seconds.
	Segment struct {
		Start float64
		End   float64
		Text  string
		Words []Word
	}

	// SpeakerTurn claims Speaker was talking during [Start, End], in
	// chunk-local seconds. Labels are only unique within one chunk.
	SpeakerTurn struct {
		Start   float64
		End     float64
		Speaker string
	}

	// AlignedSegment is a segment labelled with a speaker and shifted onto
	// the job's timeline. It is the element of the persisted result array.
	AlignedSegment struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
		Words   []Word  `json:"words"`
	}
)
