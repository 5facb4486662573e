package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(lookupMap(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.MaxChunkDuration != 600*time.Second || c.ChunkTimeout != 3600*time.Second {
		t.Fatalf("durations = %s, %s", c.MaxChunkDuration, c.ChunkTimeout)
	}
	if c.MinSpeakers != 1 || c.MaxSpeakers != 5 {
		t.Fatalf("speakers = %d..%d", c.MinSpeakers, c.MaxSpeakers)
	}
	if c.Store != "memory" || c.Transcriber != "whisperx" || c.ResultsBackend != "file" {
		t.Fatalf("config = %+v", c)
	}
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(lookupMap(map[string]string{
		"MAX_CHUNK_DURATION": "300",
		"CHUNK_TIMEOUT":      "90s",
		"MIN_SPEAKERS":       "2",
		"MAX_SPEAKERS":       " 3 ",
		"STORE":              "postgres",
		"DATABASE_URL":       "postgres://localhost/chunkscribe",
		"TRANSCRIBER":        "openai",
		"OPENAI_API_KEY":     "sk-test",
		"INBOX_DIR":          "/srv/inbox",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.MaxChunkDuration != 5*time.Minute || c.ChunkTimeout != 90*time.Second {
		t.Fatalf("durations = %s, %s", c.MaxChunkDuration, c.ChunkTimeout)
	}
	if c.MinSpeakers != 2 || c.MaxSpeakers != 3 || c.InboxDir != "/srv/inbox" {
		t.Fatalf("config = %+v", c)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	for key, v := range map[string]string{
		"CHUNK_TIMEOUT": "soon",
		"MIN_SPEAKERS":  "two",
	} {
		_, err := Load(lookupMap(map[string]string{key: v}))
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Fatalf("Load(%s=%q) error = %v, want mention of %s", key, v, err, key)
		}
	}
}

func TestValidateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero chunk", map[string]string{"MAX_CHUNK_DURATION": "0"}, "max chunk duration"},
		{"inverted speakers", map[string]string{"MIN_SPEAKERS": "4", "MAX_SPEAKERS": "2"}, "speaker bounds"},
		{"postgres without url", map[string]string{"STORE": "postgres"}, "DATABASE_URL"},
		{"openai without key", map[string]string{"TRANSCRIBER": "openai"}, "OPENAI_API_KEY"},
		{"unknown store", map[string]string{"STORE": "redis"}, "unknown store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(lookupMap(tt.env))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			err = c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

// TestValidateAfterOverride checks that a command-line override can repair an
// environment that would not validate on its own.
func TestValidateAfterOverride(t *testing.T) {
	c, err := Load(lookupMap(map[string]string{"STORE": "postgres", "TRANSCRIBER": "openai"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() accepted postgres without DATABASE_URL")
	}

	c.Store = "memory"
	c.Transcriber = "whisperx"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() after override error = %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"# service settings",
		"export CHUNKSCRIBE_TEST_A=plain",
		`CHUNKSCRIBE_TEST_B="quoted \"value\""`,
		"CHUNKSCRIBE_TEST_C='single $literal'",
		"CHUNKSCRIBE_TEST_D=from-file",
		"not a variable",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHUNKSCRIBE_TEST_D", "from-env")
	for _, k := range []string{"CHUNKSCRIBE_TEST_A", "CHUNKSCRIBE_TEST_B", "CHUNKSCRIBE_TEST_C"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	want := map[string]string{
		"CHUNKSCRIBE_TEST_A": "plain",
		"CHUNKSCRIBE_TEST_B": `quoted "value"`,
		"CHUNKSCRIBE_TEST_C": "single $literal",
		"CHUNKSCRIBE_TEST_D": "from-env",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile(missing) error = %v", err)
	}
}
