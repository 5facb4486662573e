// Package pyannote diarizes chunks with a pyannote.audio pipeline run through
// an embedded Python helper.
package pyannote

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"chunkscribe/speeches"
)

//go:embed assets/diarize.py
var diarizeScript []byte

type (
	helperOutput struct {
		Turns []struct {
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Speaker string  `json:"speaker"`
		} `json:"turns"`
	}

	Diarizer struct {
		Python  string // defaults to "python3"
		HFToken string
		Model   string
		Device  string
	}
)

var _ speeches.Diarizer = Diarizer{}

func (d Diarizer) Diarize(ctx context.Context, chunkPath string, bounds speeches.SpeakerBounds) ([]speeches.SpeakerTurn, error) {
	script, err := os.CreateTemp("", "diarize-*.py")
	if err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	defer os.Remove(script.Name())
	if _, err := script.Write(diarizeScript); err != nil {
		script.Close()
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	if err := script.Close(); err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.python(), d.args(script.Name(), chunkPath, bounds)...)
	cmd.Env = os.Environ()
	if d.HFToken != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+d.HFToken)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		log.Printf("pyannote: %s", msg)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pyannote failed (exit %d): %s", exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return nil, fmt.Errorf("run diarize helper: %w", err)
	}
	return parseTurns(out)
}

func (d Diarizer) python() string {
	if d.Python == "" {
		return "python3"
	}
	return d.Python
}

func (d Diarizer) args(script, chunkPath string, bounds speeches.SpeakerBounds) []string {
	args := []string{
		script,
		"--audio", chunkPath,
		"--min_speakers", strconv.Itoa(bounds.Min),
		"--max_speakers", strconv.Itoa(bounds.Max),
	}
	if d.Model != "" {
		args = append(args, "--model", d.Model)
	}
	if d.Device != "" {
		args = append(args, "--device", d.Device)
	}
	return args
}

func parseTurns(out []byte) ([]speeches.SpeakerTurn, error) {
	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}
	turns := make([]speeches.SpeakerTurn, len(parsed.Turns))
	for n, t := range parsed.Turns {
		turns[n] = speeches.SpeakerTurn{Start: t.Start, End: t.End, Speaker: t.Speaker}
	}
	return turns, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
