package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner answers ffprobe with a fixed duration and writes ffmpeg outputs.
type fakeRunner struct {
	duration string
	failAt   int // 1-based ffmpeg call to fail; 0 never
	calls    [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == "ffprobe" {
		return CommandResult{Stdout: f.duration + "\n"}, nil
	}
	extracts := len(f.calls) - 1
	if extracts == f.failAt {
		return CommandResult{Stderr: "Invalid data found", ExitCode: 1}, errors.New("exit status 1")
	}
	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("RIFF"), 0o644); err != nil {
		return CommandResult{}, err
	}
	return CommandResult{}, nil
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestPlanCoverage checks chunk count, offsets and total duration.
func TestPlanCoverage(t *testing.T) {
	tests := []struct {
		name       string
		total, max time.Duration
		want       []time.Duration
	}{
		{"25 minutes by 10", 25 * time.Minute, 10 * time.Minute, []time.Duration{10 * time.Minute, 10 * time.Minute, 5 * time.Minute}},
		{"exact multiple", 20 * time.Minute, 10 * time.Minute, []time.Duration{10 * time.Minute, 10 * time.Minute}},
		{"shorter than max", 42 * time.Second, 10 * time.Minute, []time.Duration{42 * time.Second}},
		{"empty source", 0, 10 * time.Minute, []time.Duration{0}},
		{"sub-second tail", 600500 * time.Millisecond, 10 * time.Minute, []time.Duration{10 * time.Minute, 500 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Plan(tt.total, tt.max)
			if len(chunks) != len(tt.want) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tt.want))
			}
			var sum time.Duration
			for i, c := range chunks {
				if c.Index != i {
					t.Fatalf("chunk %d index = %d", i, c.Index)
				}
				if c.Start != time.Duration(i)*tt.max {
					t.Fatalf("chunk %d start = %s, want %s", i, c.Start, time.Duration(i)*tt.max)
				}
				if c.Duration != tt.want[i] {
					t.Fatalf("chunk %d duration = %s, want %s", i, c.Duration, tt.want[i])
				}
				sum += c.Duration
			}
			if sum != tt.total {
				t.Fatalf("sum = %s, want %s", sum, tt.total)
			}
		})
	}
}

// TestPlanChunkCountIsCeiling sweeps many durations against ceil(L/M).
func TestPlanChunkCountIsCeiling(t *testing.T) {
	max := 7 * time.Second
	for total := time.Duration(1); total < 60*time.Second; total += 333 * time.Millisecond {
		want := int((total + max - 1) / max)
		if got := len(Plan(total, max)); got != want {
			t.Fatalf("Plan(%s) = %d chunks, want %d", total, got, want)
		}
	}
}

// TestSegmenterSplitMaterialisesChunks checks names, offsets and ffmpeg args.
func TestSegmenterSplitMaterialisesChunks(t *testing.T) {
	root := t.TempDir()
	chunkDir := filepath.Join(root, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	source := filepath.Join(root, "job1_meeting.mp3")
	mustWriteFile(t, source, "mp3")

	runner := &fakeRunner{duration: "1500.25"}
	seg := NewSegmenter(chunkDir, 10*time.Minute, WithRunner(runner))

	chunks, err := seg.Split(context.Background(), source)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		want := filepath.Join(chunkDir, ChunkName(i, "job1_meeting"))
		if c.Path != want {
			t.Fatalf("chunk %d path = %q, want %q", i, c.Path, want)
		}
		if _, err := os.Stat(c.Path); err != nil {
			t.Fatalf("chunk %d artifact missing: %v", i, err)
		}
	}
	if chunks[2].Offset() != 1200 {
		t.Fatalf("last offset = %v, want 1200", chunks[2].Offset())
	}

	last := strings.Join(runner.calls[3], " ")
	if !strings.Contains(last, "-ss 1200.000 -t 300.250") || !strings.Contains(last, "-ar 16000") {
		t.Fatalf("last ffmpeg call = %q", last)
	}

	for _, c := range chunks {
		if err := seg.Release(c); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	}
	if err := seg.Release(chunks[0]); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	entries, _ := os.ReadDir(chunkDir)
	if len(entries) != 0 {
		t.Fatalf("chunk dir not empty: %d entries", len(entries))
	}
}

// TestSegmenterSplitMissingInput checks not found reporting.
func TestSegmenterSplitMissingInput(t *testing.T) {
	seg := NewSegmenter(t.TempDir(), time.Minute, WithRunner(&fakeRunner{duration: "1"}))
	_, err := seg.Split(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("Split() error = %v, want ErrInputNotFound", err)
	}
}

// TestSegmenterSplitUnreadableDuration checks decode failures from ffprobe.
func TestSegmenterSplitUnreadableDuration(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "bad.wav")
	mustWriteFile(t, source, "garbage")

	seg := NewSegmenter(root, time.Minute, WithRunner(&fakeRunner{duration: "N/A"}))
	if _, err := seg.Split(context.Background(), source); !errors.Is(err, ErrDecode) {
		t.Fatalf("Split() error = %v, want ErrDecode", err)
	}
}

// TestSegmenterSplitSweepsOnExtractFailure checks partial artifacts are removed.
func TestSegmenterSplitSweepsOnExtractFailure(t *testing.T) {
	root := t.TempDir()
	chunkDir := filepath.Join(root, "chunks")
	_ = os.MkdirAll(chunkDir, 0o755)
	source := filepath.Join(root, "long.wav")
	mustWriteFile(t, source, "wav")

	seg := NewSegmenter(chunkDir, time.Minute, WithRunner(&fakeRunner{duration: "180", failAt: 3}))
	if _, err := seg.Split(context.Background(), source); !errors.Is(err, ErrDecode) {
		t.Fatalf("Split() error = %v, want ErrDecode", err)
	}
	entries, _ := os.ReadDir(chunkDir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover chunks, found %d", len(entries))
	}
}

// TestSweepOnlyTouchesMatchingStem checks the naming convention match.
func TestSweepOnlyTouchesMatchingStem(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"chunk_0_a.wav",
		"chunk_12_a.wav",
		"chunk_0_b.wav",
		"chunk_0_x_a.wav",
		"notes_a.wav",
	} {
		mustWriteFile(t, filepath.Join(dir, name), "")
	}

	seg := NewSegmenter(dir, time.Minute)
	if n := seg.Sweep("a"); n != 2 {
		t.Fatalf("Sweep() removed %d, want 2", n)
	}
	if n := seg.Sweep("a"); n != 0 {
		t.Fatalf("second Sweep() removed %d, want 0", n)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("remaining entries = %d, want 3", len(entries))
	}
}

// TestParseProbeDuration checks ffprobe output parsing.
func TestParseProbeDuration(t *testing.T) {
	got, err := parseProbeDuration("  61.5\n")
	if err != nil || got != 61500*time.Millisecond {
		t.Fatalf("parseProbeDuration() = %s, %v", got, err)
	}
	for _, in := range []string{"", "N/A", "abc", "-3"} {
		if _, err := parseProbeDuration(in); err == nil {
			t.Fatalf("parseProbeDuration(%q) expected error", in)
		}
	}
}
