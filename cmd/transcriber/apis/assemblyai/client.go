// Package assemblyai transcribes and diarizes audio with the hosted AssemblyAI
// service.
package assemblyai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
)

const (
	ModelDefault = "best"

	speakerPrefix = "SPEAKER_"
)

type Config struct {
	APIKey string
	// BaseURL overrides the service endpoint.
	BaseURL string
}

func (c Config) IsValid() error {
	if c.APIKey == "" {
		return fmt.Errorf("invalid APIKey: should not be empty")
	}
	return nil
}

type Client struct {
	client *aai.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	opts := []aai.ClientOption{aai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, aai.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: aai.NewClientWithOptions(opts...),
	}, nil
}

func (c *Client) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return transcribe.Result{}, failure.IO(fmt.Errorf("failed to open audio file: %w", err))
	}
	defer f.Close()

	start := time.Now()
	slog.Debug("submitting transcription",
		slog.String("path", req.AudioPath),
		slog.String("language", req.Language),
		slog.String("model", req.Model))

	tr, err := c.client.Transcripts.TranscribeFromReader(ctx, f, params(req))
	if err != nil {
		return transcribe.Result{}, failure.Transcription(fmt.Errorf("failed to transcribe: %w", err))
	}

	slog.Debug("transcription completed",
		slog.String("id", aai.ToString(tr.ID)),
		slog.Duration("elapsed", time.Since(start)))

	return fromTranscript(tr)
}

func params(req transcribe.Request) *aai.TranscriptOptionalParams {
	p := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(true),
	}
	if req.SpeakersExpected > 0 {
		p.SpeakersExpected = aai.Int64(int64(req.SpeakersExpected))
	}
	if req.Language != "" {
		p.LanguageCode = aai.TranscriptLanguageCode(req.Language)
	}
	model := req.Model
	if model == "" {
		model = ModelDefault
	}
	p.SpeechModel = aai.SpeechModel(model)
	return p
}

func fromTranscript(tr aai.Transcript) (transcribe.Result, error) {
	if tr.Status == aai.TranscriptStatusError {
		return transcribe.Result{}, failure.Transcription(fmt.Errorf("transcription failed: %s", aai.ToString(tr.Error)))
	}

	res := transcribe.Result{
		Utterances: make([]transcribe.Utterance, 0, len(tr.Utterances)),
		Language:   string(tr.LanguageCode),
		Duration:   time.Duration(aai.ToInt64(tr.AudioDuration)) * time.Second,
	}

	for _, u := range tr.Utterances {
		var speaker string
		if s := aai.ToString(u.Speaker); s != "" {
			speaker = speakerPrefix + s
		}
		res.Utterances = append(res.Utterances, transcribe.Utterance{
			Speaker: speaker,
			Text:    aai.ToString(u.Text),
			StartTS: aai.ToInt64(u.Start),
			EndTS:   aai.ToInt64(u.End),
		})
	}

	return res, nil
}
