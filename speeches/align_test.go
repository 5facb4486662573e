package speeches

import (
	"reflect"
	"testing"
)

// TestOverlapsClauses exercises each of the four overlap clauses.
func TestOverlapsClauses(t *testing.T) {
	turn := SpeakerTurn{Start: 10, End: 20, Speaker: "A"}
	tests := []struct {
		name string
		seg  Segment
		want bool
	}{
		{"segment inside turn", Segment{Start: 12, End: 18}, true},
		{"turn inside segment", Segment{Start: 5, End: 25}, true},
		{"straddles turn start", Segment{Start: 5, End: 12}, true},
		{"straddles turn end", Segment{Start: 15, End: 25}, true},
		{"touches turn start", Segment{Start: 5, End: 10}, true},
		{"touches turn end", Segment{Start: 20, End: 22}, true},
		{"entirely before", Segment{Start: 1, End: 9.99}, false},
		{"entirely after", Segment{Start: 20.01, End: 30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.seg, turn); got != tt.want {
				t.Fatalf("Overlaps(%+v, %+v) = %v, want %v", tt.seg, turn, got, tt.want)
			}
		})
	}
}

// TestSpeakerForContainment labels a contained segment with its turn.
func TestSpeakerForContainment(t *testing.T) {
	turns := []SpeakerTurn{{Start: 0, End: 10, Speaker: "A"}}
	if got := SpeakerFor(Segment{Start: 2, End: 5}, turns); got != "A" {
		t.Fatalf("speaker = %q, want A", got)
	}
}

// TestSpeakerForMiss returns the sentinel when nothing overlaps.
func TestSpeakerForMiss(t *testing.T) {
	turns := []SpeakerTurn{{Start: 0, End: 1, Speaker: "A"}}
	if got := SpeakerFor(Segment{Start: 2, End: 3}, turns); got != UnknownSpeaker {
		t.Fatalf("speaker = %q, want %q", got, UnknownSpeaker)
	}
	if got := SpeakerFor(Segment{Start: 2, End: 3}, nil); got != UnknownSpeaker {
		t.Fatalf("speaker with no turns = %q, want %q", got, UnknownSpeaker)
	}
}

// TestSpeakerForFirstMatchWins ignores overlap size and picks supplied order.
func TestSpeakerForFirstMatchWins(t *testing.T) {
	seg := Segment{Start: 9, End: 20}
	turns := []SpeakerTurn{
		{Start: 0, End: 10, Speaker: "A"},
		{Start: 10, End: 30, Speaker: "B"},
	}
	if got := SpeakerFor(seg, turns); got != "A" {
		t.Fatalf("speaker = %q, want A", got)
	}

	turns[0], turns[1] = turns[1], turns[0]
	if got := SpeakerFor(seg, turns); got != "B" {
		t.Fatalf("speaker after reorder = %q, want B", got)
	}
}

// TestAlignKeepsOrderAndWords labels every segment without reordering.
func TestAlignKeepsOrderAndWords(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2, Text: "hello there", Words: []Word{{Text: "hello", Start: 0, End: 1}, {Text: "there", Start: 1, End: 2}}},
		{Start: 50, End: 52, Text: "anyone"},
		{Start: 3, End: 4, Text: "bye"},
	}
	turns := []SpeakerTurn{
		{Start: 2.5, End: 5, Speaker: "SPEAKER_01"},
		{Start: 0, End: 2.5, Speaker: "SPEAKER_00"},
	}

	got := Align(segments, turns)
	want := []AlignedSegment{
		{Start: 0, End: 2, Speaker: "SPEAKER_00", Text: "hello there", Words: []Word{{Text: "hello", Start: 0, End: 1}, {Text: "there", Start: 1, End: 2}}},
		{Start: 50, End: 52, Speaker: UnknownSpeaker, Text: "anyone", Words: []Word{}},
		{Start: 3, End: 4, Speaker: "SPEAKER_01", Text: "bye", Words: []Word{}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Align() =\n%+v\nwant\n%+v", got, want)
	}

	got[0].Words[0].Text = "changed"
	if segments[0].Words[0].Text != "hello" {
		t.Fatal("Align shares word storage with its input")
	}
}

// TestAlignEmpty returns an empty, non-nil timeline.
func TestAlignEmpty(t *testing.T) {
	got := Align(nil, []SpeakerTurn{{Start: 0, End: 1, Speaker: "A"}})
	if got == nil || len(got) != 0 {
		t.Fatalf("Align(nil) = %#v", got)
	}
}

// TestShiftMovesSegmentsAndWords applies the chunk offset to every timestamp.
func TestShiftMovesSegmentsAndWords(t *testing.T) {
	segs := []AlignedSegment{{Start: 30, End: 32, Words: []Word{{Text: "x", Start: 30.5, End: 31}}}}
	Shift(segs, 1200)
	if segs[0].Start != 1230 || segs[0].End != 1232 {
		t.Fatalf("segment = %+v", segs[0])
	}
	if w := segs[0].Words[0]; w.Start != 1230.5 || w.End != 1231 {
		t.Fatalf("word = %+v", w)
	}
}
