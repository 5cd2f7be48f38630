package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/apis/assemblyai"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/apis/azure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/apis/fasterwhisper"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/apis/pyannote"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/apis/silero"
	whisper "github.com/mattermost/audio-transcriber/cmd/transcriber/apis/whisper.cpp"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/config"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/silence"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"
)

const healthCheckTimeout = 5 * time.Second

type closeFunc func() error

func noopClose() error { return nil }

type healthChecker interface {
	IsAvailable(ctx context.Context) bool
}

func checkSidecar(name, url string, c healthChecker) {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if !c.IsAvailable(ctx) {
		slog.Warn("sidecar is not answering", slog.String("name", name), slog.String("url", url))
	}
}

// newClient builds the transcription client for the configured API. The
// returned closeFunc releases any native resources held by the client.
func newClient(cfg config.TranscribeConfig, creds config.Credentials) (transcribe.Client, closeFunc, error) {
	if err := creds.IsValidFor(cfg.TranscribeAPI); err != nil {
		return nil, nil, failure.Configuration(err)
	}

	if !cfg.TranscribeAPI.IsLocal() {
		client, err := assemblyai.NewClient(assemblyai.Config{
			APIKey: creds.AssemblyAIKey,
		})
		if err != nil {
			return nil, nil, failure.Configuration(fmt.Errorf("failed to create AssemblyAI client: %w", err))
		}
		return client, noopClose, nil
	}

	rec, closeRec, err := newRecognizer(cfg, creds)
	if err != nil {
		return nil, nil, err
	}

	dia, err := pyannote.NewClient(pyannote.Config{
		URL:     cfg.PyannoteURL,
		HFToken: creds.HFToken,
	})
	if err != nil {
		_ = closeRec()
		return nil, nil, failure.Configuration(fmt.Errorf("failed to create diarization client: %w", err))
	}
	checkSidecar("pyannote", cfg.PyannoteURL, dia)

	client, err := transcribe.NewComposite(rec, dia)
	if err != nil {
		_ = closeRec()
		return nil, nil, failure.Configuration(fmt.Errorf("failed to create client: %w", err))
	}

	return client, closeRec, nil
}

func newRecognizer(cfg config.TranscribeConfig, creds config.Credentials) (transcribe.Recognizer, closeFunc, error) {
	switch cfg.TranscribeAPI {
	case config.TranscribeAPIWhisperCPP:
		ctx, err := whisper.NewContext(whisper.Config{
			ModelFile:  whisper.ModelPath(cfg.ModelsDir, cfg.Model),
			NumThreads: cfg.NumThreads,
			Language:   transcribe.BaseLanguage(cfg.Language),
		})
		if err != nil {
			return nil, nil, failure.Configuration(fmt.Errorf("failed to create whisper context: %w", err))
		}
		return ctx, ctx.Destroy, nil
	case config.TranscribeAPIWhisperServer:
		client, err := fasterwhisper.NewClient(fasterwhisper.Config{
			URL:   cfg.WhisperServerURL,
			Model: cfg.Model,
		})
		if err != nil {
			return nil, nil, failure.Configuration(fmt.Errorf("failed to create whisper server client: %w", err))
		}
		checkSidecar("whisper-server", cfg.WhisperServerURL, client)
		return client, noopClose, nil
	case config.TranscribeAPIAzure:
		rec, err := azure.NewRecognizer(azure.Config{
			SpeechKey:    creds.AzureSpeechKey,
			SpeechRegion: creds.AzureSpeechRegion,
		})
		if err != nil {
			return nil, nil, failure.Configuration(fmt.Errorf("failed to create azure recognizer: %w", err))
		}
		return rec, noopClose, nil
	default:
		return nil, nil, failure.Configuration(fmt.Errorf("unsupported API %q", cfg.TranscribeAPI))
	}
}

// newDetector returns the silence detector for cfg along with the layout
// inputs must be decoded to before detection.
func newDetector(cfg config.SplitConfig) (silence.Detector, audio.LoadOptions, closeFunc, error) {
	switch cfg.Detector {
	case config.SilenceDetectorVAD:
		var vadCfg silero.Config
		vadCfg.SetDefaults(cfg.ModelsDir)
		det, err := silero.NewDetector(vadCfg)
		if err != nil {
			return nil, audio.LoadOptions{}, nil, failure.Configuration(fmt.Errorf("failed to create VAD detector: %w", err))
		}
		return det, audio.LoadOptions{SampleRate: silero.SampleRate, Channels: 1}, det.Destroy, nil
	default:
		det, err := silence.NewEnergyDetector(cfg.Silence)
		if err != nil {
			return nil, audio.LoadOptions{}, nil, failure.Configuration(fmt.Errorf("failed to create energy detector: %w", err))
		}
		return det, audio.LoadOptions{}, noopClose, nil
	}
}
