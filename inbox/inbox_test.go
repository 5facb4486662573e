package inbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chunkscribe/jobs"
)

type submission struct {
	name string
	body string
}

// fakeSubmitter records every submitted file on a channel.
type fakeSubmitter struct {
	got chan submission
}

func (f fakeSubmitter) Submit(ctx context.Context, fileName string, body io.Reader) (jobs.Job, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return jobs.Job{}, err
	}
	f.got <- submission{name: fileName, body: string(data)}
	return jobs.Job{ID: "job-" + fileName, FileName: fileName}, nil
}

func waitSubmission(t *testing.T, got <-chan submission) submission {
	t.Helper()
	select {
	case s := <-got:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no submission within 5s")
		return submission{}
	}
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s still in inbox", path)
}

func startWatcher(t *testing.T, dir string, sub fakeSubmitter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWatcher(dir, sub, 40*time.Millisecond).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
}

// TestWatcherSubmitsExistingFiles picks up audio present before start.
func TestWatcherSubmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standup.mp3")
	if err := os.WriteFile(path, []byte("ID3 data"), 0o644); err != nil {
		t.Fatal(err)
	}

	sub := fakeSubmitter{got: make(chan submission, 4)}
	startWatcher(t, dir, sub)

	s := waitSubmission(t, sub.got)
	if s.name != "standup.mp3" || s.body != "ID3 data" {
		t.Fatalf("submission = %+v", s)
	}
	waitGone(t, path)
}

// TestWatcherSubmitsDroppedFiles waits for a new file to settle.
func TestWatcherSubmitsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	sub := fakeSubmitter{got: make(chan submission, 4)}
	startWatcher(t, dir, sub)
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "call.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := waitSubmission(t, sub.got)
	if s.name != "call.wav" || s.body != "RIFF" {
		t.Fatalf("submission = %+v", s)
	}
	waitGone(t, path)

	select {
	case extra := <-sub.got:
		t.Fatalf("unexpected submission %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("non-audio file touched: %v", err)
	}
}

func TestIsAudio(t *testing.T) {
	for name, want := range map[string]bool{
		"a.WAV": true, "b.mp3": true, "c.m4a": true, "d.txt": false, "e": false, "f.wav.part": false,
	} {
		if got := IsAudio(name); got != want {
			t.Errorf("IsAudio(%q) = %v, want %v", name, got, want)
		}
	}
}
