package speeches

// UnknownSpeaker labels a segment that overlaps no speaker turn.
const UnknownSpeaker = "UNKNOWN"

// Overlaps reports whether segment s and turn t overlap. The four clauses
// (s inside t, t inside s, s straddles t.Start, s straddles t.End) together
// amount to closed-interval intersection. They are evaluated in this order
// and kept as written.
func Overlaps(s Segment, t SpeakerTurn) bool {
	return (s.Start >= t.Start && s.End <= t.End) ||
		(s.Start <= t.Start && s.End >= t.End) ||
		(s.Start <= t.Start && s.End >= t.Start) ||
		(s.Start <= t.End && s.End >= t.End)
}

// SpeakerFor returns the label of the first turn, in the order given, that
// overlaps s. Overlap size and turn start play no part in the choice.
func SpeakerFor(s Segment, turns []SpeakerTurn) string {
	for _, t := range turns {
		if Overlaps(s, t) {
			return t.Speaker
		}
	}
	return UnknownSpeaker
}

// Align labels every segment of one chunk with a speaker, keeping the
// transcriber's segment order. Timestamps stay chunk-local.
func Align(segments []Segment, turns []SpeakerTurn) []AlignedSegment {
	out := make([]AlignedSegment, len(segments))
	for i, s := range segments {
		words := make([]Word, len(s.Words))
		copy(words, s.Words)
		out[i] = AlignedSegment{
			Start:   s.Start,
			End:     s.End,
			Speaker: SpeakerFor(s, turns),
			Text:    s.Text,
			Words:   words,
		}
	}
	return out
}

// Shift moves segments and their words by offset seconds in place.
func Shift(segments []AlignedSegment, offset float64) []AlignedSegment {
	if offset == 0 {
		return segments
	}
	for i := range segments {
		segments[i].Start += offset
		segments[i].End += offset
		for j := range segments[i].Words {
			segments[i].Words[j].Start += offset
			segments[i].Words[j].End += offset
		}
	}
	return segments
}
