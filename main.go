package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkscribe/audio"
	"chunkscribe/config"
	"chunkscribe/inbox"
	"chunkscribe/jobs"
	"chunkscribe/openaiwhisper"
	"chunkscribe/pyannote"
	"chunkscribe/speeches"
	"chunkscribe/whisperx"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	envFile := flag.String("env", ".env", "env file loaded before reading the environment")
	addr := flag.String("addr", "", "listen address (overrides ADDR)")
	store := flag.String("store", "", "job store: memory|sqlite|postgres (overrides STORE)")
	transcriber := flag.String("transcriber", "", "transcriber: whisperx|openai (overrides TRANSCRIBER)")
	inboxDir := flag.String("inbox", "", "directory watched for dropped audio (overrides INBOX_DIR)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	overrideString(&cfg.Addr, *addr)
	overrideString(&cfg.Store, *store)
	overrideString(&cfg.Transcriber, *transcriber)
	overrideString(&cfg.InboxDir, *inboxDir)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	for _, dir := range []string{cfg.UploadDir, cfg.ResultsDir, cfg.ChunkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var db *sql.DB
	if cfg.Store == "sqlite" || cfg.ResultsBackend == "sqlite" {
		db = initDB(cfg.SQLitePath)
		defer db.Close()
	}

	store, closeStore, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := openResults(ctx, cfg, db)
	if err != nil {
		return err
	}

	bus := jobs.NewEventBus(0)
	store = jobs.WithEvents(store, bus)

	seg := audio.NewSegmenter(cfg.ChunkDir, cfg.MaxChunkDuration, audio.WithBinaries(cfg.FFmpeg, cfg.FFprobe))
	orch := speeches.NewOrchestrator(store, seg, newTranscriber(cfg), pyannote.Diarizer{
		Python:  cfg.Python,
		HFToken: cfg.HFToken,
		Device:  cfg.Device,
	}, results, speeches.OrchestratorConfig{
		Bounds:       speeches.SpeakerBounds{Min: cfg.MinSpeakers, Max: cfg.MaxSpeakers},
		ChunkTimeout: cfg.ChunkTimeout,
	})
	svc := speeches.NewService(store, orch, results, cfg.UploadDir)

	if cfg.InboxDir != "" {
		if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", cfg.InboxDir, err)
		}
		w := inbox.NewWatcher(cfg.InboxDir, svc, inbox.DefaultSettle)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Printf("inbox stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc, bus),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http listen and serve: %v\n", err)
		}
	}()
	log.Printf("listening on %s (store=%s, transcriber=%s, chunks of %s)", cfg.Addr, cfg.Store, cfg.Transcriber, cfg.MaxChunkDuration)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown server: %v\n", err)
	}

	log.Println("waiting for running jobs")
	svc.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.Config, db *sql.DB) (jobs.Store, func(), error) {
	switch cfg.Store {
	case "sqlite":
		r := jobs.NewSQLiteRepo(db)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	case "postgres":
		r, err := jobs.NewPgRepo(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return jobs.NewMemoryStore(), func() {}, nil
	}
}

func openResults(ctx context.Context, cfg config.Config, db *sql.DB) (speeches.ResultStore, error) {
	if cfg.ResultsBackend == "sqlite" {
		r := speeches.NewSQLiteResults(db)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}
	return speeches.NewFileResults(cfg.ResultsDir), nil
}

func newTranscriber(cfg config.Config) speeches.Transcriber {
	if cfg.Transcriber == "openai" {
		return openaiwhisper.NewTranscriber(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Language)
	}
	return whisperx.WhisperxTranscriber{
		Model:    cfg.WhisperxModel,
		Language: cfg.Language,
		Device:   cfg.Device,
	}
}

func initDB(path string) *sql.DB {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=10000&_txlock=immediate")
	if err != nil {
		log.Fatal(err)
	}

	_, err = db.Exec(`
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA journal_size_limit = 200000000;
	PRAGMA synchronous        = NORMAL;
	PRAGMA foreign_keys       = ON;
	PRAGMA temp_store         = MEMORY;
	PRAGMA cache_size         = -16000;`)
	if err != nil {
		log.Fatal(err)
	}

	return db
}
