// Package whisperx transcribes chunks with the whisperx command line tool.
package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"chunkscribe/speeches"

	"github.com/shopspring/decimal"
)

type (
	transcribeResult struct {
		Segments []segment `json:"segments"`
	}

	segment struct {
		Text  string          `json:"text"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Words []word          `json:"words"`
	}

	// whisperx leaves start/end out for tokens it could not align.
	word struct {
		Text  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

type WhisperxTranscriber struct {
	Binary   string // defaults to "whisperx"
	Model    string
	Language string
	Device   string
}

var _ speeches.Transcriber = WhisperxTranscriber{}

func (w WhisperxTranscriber) Transcribe(ctx context.Context, chunkPath string) ([]speeches.Segment, error) {
	outDir, err := os.MkdirTemp("", "whisperx-*")
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.binary(), w.args(chunkPath, outDir)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting whisperx: %w", err)
	}

	done := make(chan struct{}, 2)
	go logLines(stderr, done)
	go logLines(stdout, done)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}

	resultPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(chunkPath), filepath.Ext(chunkPath))+".json")
	resultFile, err := os.Open(resultPath)
	if err != nil {
		return nil, fmt.Errorf("opening whisperx transcribe result: %w", err)
	}
	defer resultFile.Close()

	return decodeResult(resultFile)
}

func (w WhisperxTranscriber) binary() string {
	if w.Binary == "" {
		return "whisperx"
	}
	return w.Binary
}

func (w WhisperxTranscriber) args(chunkPath, outDir string) []string {
	args := []string{chunkPath, "--output_format", "json", "--output_dir", outDir}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	if w.Language != "" {
		args = append(args, "--language", w.Language)
	}
	if w.Device != "" {
		args = append(args, "--device", w.Device)
	}
	return args
}

func logLines(r io.Reader, done chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		log.Println("whisperx:", scanner.Text())
	}
	done <- struct{}{}
}

func decodeResult(r io.Reader) ([]speeches.Segment, error) {
	var tr transcribeResult
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding whisperx json result: %w", err)
	}

	res := make([]speeches.Segment, len(tr.Segments))
	for n, s := range tr.Segments {
		res[n] = speeches.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start.InexactFloat64(),
			End:   s.End.InexactFloat64(),
			Words: wordsFromResult(s),
		}
	}
	return res, nil
}

// wordsFromResult fills missing word times from the neighbouring word, or
// from the segment bounds when there is none.
func wordsFromResult(s segment) []speeches.Word {
	res := make([]speeches.Word, len(s.Words))
	prevEnd := s.Start
	for n, w := range s.Words {
		start, end := prevEnd, prevEnd
		if w.Start != nil {
			start = *w.Start
		}
		if w.End != nil {
			end = *w.End
		} else if start.GreaterThan(end) {
			end = start
		}
		prevEnd = end

		res[n] = speeches.Word{
			Text:  strings.TrimSpace(w.Text),
			Start: start.InexactFloat64(),
			End:   end.InexactFloat64(),
		}
	}
	return res
}
