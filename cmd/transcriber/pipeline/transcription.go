// Package pipeline wires the audio, silence, turns and transcribe stages into
// the runs exposed by the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/config"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

const (
	tempDirPrefix    = "transcriber-"
	convertedName    = "converted.wav"
	paddedName       = "padded.wav"
	transcriptSuffix = "_transcript.txt"
)

type Converter interface {
	Convert(ctx context.Context, in, out string) error
}

type Prober interface {
	Probe(path string) (audio.Info, error)
}

// Transcription turns one input file into a transcript on disk.
type Transcription struct {
	cfg    config.TranscribeConfig
	client transcribe.Client
	conv   Converter
	prober Prober
	now    func() time.Time
}

// NewTranscription validates cfg and returns a pipeline using client. prober
// may be nil, in which case the input duration is not probed.
func NewTranscription(cfg config.TranscribeConfig, client transcribe.Client, conv Converter, prober Prober) (*Transcription, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}
	if client == nil {
		return nil, failure.Configuration(fmt.Errorf("invalid client: should not be nil"))
	}
	if conv == nil {
		return nil, failure.Configuration(fmt.Errorf("invalid converter: should not be nil"))
	}

	return &Transcription{
		cfg:    cfg,
		client: client,
		conv:   conv,
		prober: prober,
		now:    time.Now,
	}, nil
}

// OutputPath returns where the transcript for input gets written.
func (t *Transcription) OutputPath(input string) string {
	if t.cfg.Output != "" {
		return t.cfg.Output
	}

	dir := t.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+transcriptSuffix)
}

// Run converts, pads and transcribes input, then writes the transcript. The
// per-run temporary directory is always removed. Nothing is written when an
// earlier stage fails.
func (t *Transcription) Run(ctx context.Context, input string) (output string, retErr error) {
	runID := uuid.NewString()
	logger := slog.With(slog.String("runID", runID), slog.String("input", input))

	if _, err := os.Stat(input); err != nil {
		return "", failure.IO(fmt.Errorf("failed to stat input: %w", err))
	}

	tmpDir := filepath.Join(t.cfg.TempDir, tempDirPrefix+runID)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", failure.IO(fmt.Errorf("failed to create temp dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Error("failed to remove temp dir", slog.String("err", err.Error()))
			retErr = multierror.Append(retErr, failure.IO(fmt.Errorf("failed to remove temp dir: %w", err)))
			output = ""
		}
	}()

	start := time.Now()
	logger.Info("starting transcription")

	var inputDur time.Duration
	if t.prober != nil {
		if info, err := t.prober.Probe(input); err != nil {
			logger.Warn("failed to probe input", slog.String("err", err.Error()))
		} else {
			inputDur = info.Duration
			logger.Debug("probed input", slog.Duration("duration", inputDur))
		}
	}

	audioPath := filepath.Join(tmpDir, convertedName)
	if err := t.conv.Convert(ctx, input, audioPath); err != nil {
		return "", fmt.Errorf("failed to convert input: %w", err)
	}

	if t.cfg.PaddingMs > 0 {
		paddedPath := filepath.Join(tmpDir, paddedName)
		if err := audio.PadFile(audioPath, paddedPath, t.cfg.PaddingMs, t.cfg.PadMode); err != nil {
			return "", fmt.Errorf("failed to pad audio: %w", err)
		}
		audioPath = paddedPath
	}

	res, err := t.transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}

	utterances := transcribe.Shift(res.Utterances, int64(t.cfg.PaddingMs))
	if res.Duration == 0 {
		res.Duration = inputDur
	}

	tr := transcribe.Transcription{
		GeneratedAt: t.now(),
		Spaced:      !t.cfg.NoMerge,
	}
	if t.cfg.NoMerge {
		tr.Segments = transcribe.Unmerged(utterances)
	} else {
		tr.Segments = transcribe.Merge(utterances)
	}

	output = t.OutputPath(input)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", failure.IO(fmt.Errorf("failed to create output dir: %w", err))
	}

	if err := transcribe.WriteFile(output, tr.Text); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	if t.cfg.VTT {
		vttPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".vtt"
		if err := transcribe.WriteFile(vttPath, func(w io.Writer) error {
			return tr.WebVTT(w, t.cfg.WebVTT)
		}); err != nil {
			return "", fmt.Errorf("failed to write WebVTT file: %w", err)
		}
	}

	elapsed := time.Since(start)
	logger.Info("transcription done",
		slog.String("output", output),
		slog.String("language", res.Language),
		slog.Int("utterances", len(utterances)),
		slog.Int("segments", len(tr.Segments)),
		slog.Duration("audioDuration", res.Duration),
		slog.Duration("elapsed", elapsed))

	return output, nil
}

func (t *Transcription) transcribe(ctx context.Context, audioPath string) (transcribe.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	res, err := t.client.Transcribe(ctx, transcribe.Request{
		AudioPath:        audioPath,
		Language:         t.cfg.Language,
		SpeakersExpected: t.cfg.SpeakersExpected,
		Model:            t.cfg.Model,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return transcribe.Result{}, failure.Transcription(fmt.Errorf("transcription timed out after %s: %w", t.cfg.Timeout, err))
	} else if err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to transcribe: %w", failure.Transcription(err))
	}

	return res, nil
}
