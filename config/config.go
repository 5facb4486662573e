// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type (
	Config struct {
		Addr string

		UploadDir  string
		ResultsDir string
		ChunkDir   string
		InboxDir   string // empty disables the inbox watcher

		MaxChunkDuration time.Duration
		ChunkTimeout     time.Duration
		MinSpeakers      int
		MaxSpeakers      int

		Store          string // memory | sqlite | postgres
		ResultsBackend string // file | sqlite
		SQLitePath     string
		DatabaseURL    string

		Transcriber   string // whisperx | openai
		WhisperxModel string
		Language      string
		OpenAIKey     string
		OpenAIBaseURL string
		OpenAIModel   string

		Python  string
		HFToken string
		Device  string

		FFmpeg  string
		FFprobe string
	}

	// LookupFunc matches os.LookupEnv.
	LookupFunc func(key string) (string, bool)
)

// Defaults returns the settings used when nothing is configured.
func Defaults() Config {
	return Config{
		Addr:             ":8000",
		UploadDir:        "uploaded_files",
		ResultsDir:       "transcription_results",
		ChunkDir:         "audio_chunks",
		MaxChunkDuration: 10 * time.Minute,
		ChunkTimeout:     time.Hour,
		MinSpeakers:      1,
		MaxSpeakers:      5,
		Store:            "memory",
		ResultsBackend:   "file",
		SQLitePath:       "chunkscribe.db",
		Transcriber:      "whisperx",
		Python:           "python3",
		Device:           "cpu",
		FFmpeg:           "ffmpeg",
		FFprobe:          "ffprobe",
	}
}

// FromEnv loads settings from the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load overlays variables found through lookup on Defaults. Only malformed
// values are rejected here; call Validate once every override is applied.
func Load(lookup LookupFunc) (Config, error) {
	c := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ADDR", &c.Addr)
	str("UPLOAD_DIR", &c.UploadDir)
	str("RESULTS_DIR", &c.ResultsDir)
	str("CHUNK_DIR", &c.ChunkDir)
	str("INBOX_DIR", &c.InboxDir)
	dur("MAX_CHUNK_DURATION", &c.MaxChunkDuration)
	dur("CHUNK_TIMEOUT", &c.ChunkTimeout)
	num("MIN_SPEAKERS", &c.MinSpeakers)
	num("MAX_SPEAKERS", &c.MaxSpeakers)
	str("STORE", &c.Store)
	str("RESULTS_BACKEND", &c.ResultsBackend)
	str("SQLITE_PATH", &c.SQLitePath)
	str("DATABASE_URL", &c.DatabaseURL)
	str("TRANSCRIBER", &c.Transcriber)
	str("WHISPERX_MODEL", &c.WhisperxModel)
	str("LANGUAGE", &c.Language)
	str("OPENAI_API_KEY", &c.OpenAIKey)
	str("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	str("OPENAI_MODEL", &c.OpenAIModel)
	str("PYTHON", &c.Python)
	str("HF_TOKEN", &c.HFToken)
	str("DEVICE", &c.Device)
	str("FFMPEG", &c.FFmpeg)
	str("FFPROBE", &c.FFprobe)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return c, nil
}

// ParseDuration accepts Go duration strings ("10m") and bare seconds ("600").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("max chunk duration must be positive, got %s", c.MaxChunkDuration))
	}
	if c.ChunkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chunk timeout must be positive, got %s", c.ChunkTimeout))
	}
	if c.MinSpeakers < 1 || c.MaxSpeakers < c.MinSpeakers {
		errs = append(errs, fmt.Errorf("speaker bounds must satisfy 1 <= min <= max, got %d..%d", c.MinSpeakers, c.MaxSpeakers))
	}
	switch c.Store {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres store requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.ResultsBackend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown results backend %q", c.ResultsBackend))
	}
	switch c.Transcriber {
	case "whisperx":
	case "openai":
		if c.OpenAIKey == "" {
			errs = append(errs, errors.New("openai transcriber requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcriber %q", c.Transcriber))
	}
	return errors.Join(errs...)
}
