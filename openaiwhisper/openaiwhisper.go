// Package openaiwhisper transcribes chunks through the OpenAI audio API.
package openaiwhisper

import (
	"context"
	"fmt"
	"strings"

	"chunkscribe/speeches"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.Whisper1

type (
	audioClient interface {
		CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	}

	Transcriber struct {
		cli      audioClient
		model    string
		language string
	}
)

var _ speeches.Transcriber = Transcriber{}

// NewTranscriber builds a client for apiKey. A non-empty baseURL points it at
// an OpenAI compatible server.
func NewTranscriber(apiKey, baseURL, model, language string) Transcriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return Transcriber{cli: openai.NewClientWithConfig(cfg), model: model, language: language}
}

func (t Transcriber) Transcribe(ctx context.Context, chunkPath string) ([]speeches.Segment, error) {
	resp, err := t.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: chunkPath,
		Language: t.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	return fromResponse(resp), nil
}

// fromResponse attaches the response's flat word list to the segment each
// word starts in. Words before the first segment go to the first one.
func fromResponse(resp openai.AudioResponse) []speeches.Segment {
	res := make([]speeches.Segment, len(resp.Segments))
	for n, s := range resp.Segments {
		res[n] = speeches.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
			Words: []speeches.Word{},
		}
	}
	if len(res) == 0 {
		return res
	}

	n := 0
	for _, w := range resp.Words {
		for n+1 < len(res) && w.Start >= res[n+1].Start {
			n++
		}
		res[n].Words = append(res[n].Words, speeches.Word{
			Text:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		})
	}
	return res
}
