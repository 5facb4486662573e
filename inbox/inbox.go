// Package inbox submits audio files dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chunkscribe/jobs"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is picked up.
const DefaultSettle = 2 * time.Second

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true,
	".ogg": true, ".opus": true, ".webm": true, ".aac": true, ".mp4": true,
}

type (
	submitter interface {
		Submit(ctx context.Context, fileName string, body io.Reader) (jobs.Job, error)
	}

	Watcher struct {
		dir    string
		submit submitter
		settle time.Duration
	}
)

func NewWatcher(dir string, s submitter, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{dir: dir, submit: s, settle: settle}
}

// IsAudio reports whether name has an extension the inbox accepts.
func IsAudio(name string) bool {
	return audioExts[strings.ToLower(filepath.Ext(name))]
}

// Run watches the directory until ctx is done. Files already present when it
// starts are submitted too.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: creating watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Printf("inbox: closing watcher: %v", err)
		}
	}()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watching %s: %w", w.dir, err)
	}
	log.Printf("inbox: watching %s", w.dir)

	pending := map[string]time.Time{}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: listing %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && IsAudio(e.Name()) {
			pending[filepath.Join(w.dir, e.Name())] = time.Now()
		}
	}

	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("inbox: watcher closed")
			}
			if !IsAudio(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("inbox: watcher closed")
			}
			log.Printf("inbox: %v", err)

		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

// ingest submits one settled file and removes it from the inbox.
func (w *Watcher) ingest(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("inbox: opening %s: %v", path, err)
		}
		return
	}
	job, err := w.submit.Submit(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		log.Printf("inbox: submitting %s: %v", path, err)
		return
	}

	if err := os.Remove(path); err != nil {
		log.Printf("inbox: removing %s: %v", path, err)
	}
	log.Printf("inbox: %s submitted as job %s", filepath.Base(path), job.ID)
}
