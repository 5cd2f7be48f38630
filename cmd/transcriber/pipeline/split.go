package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/config"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/segment"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/silence"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/turns"
)

const (
	segmentsDirSuffix = "_segments"
	turnsDirSuffix    = "_turns"
)

// Codec decodes inputs into clips and encodes clips back to files.
type Codec interface {
	Load(ctx context.Context, path string, opts audio.LoadOptions) (*audio.Clip, error)
	segment.Encoder
}

func outputDir(dir, input, suffix string) string {
	if dir != "" {
		return dir
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+suffix)
}

func statInput(input string) error {
	if _, err := os.Stat(input); err != nil {
		return failure.IO(fmt.Errorf("failed to stat input: %w", err))
	}
	return nil
}

// Split cuts an input file on silence and exports one file per segment.
type Split struct {
	cfg      config.SplitConfig
	codec    Codec
	det      silence.Detector
	loadOpts audio.LoadOptions
	exporter *segment.Exporter
}

// NewSplit returns a pipeline using det to find the sound-bearing spans.
// loadOpts forces the layout det needs, if any.
func NewSplit(cfg config.SplitConfig, codec Codec, det silence.Detector, loadOpts audio.LoadOptions) (*Split, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}
	if det == nil {
		return nil, failure.Configuration(fmt.Errorf("invalid detector: should not be nil"))
	}

	exporter, err := segment.NewExporter(codec, cfg.Format)
	if err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to create exporter: %w", err))
	}

	return &Split{
		cfg:      cfg,
		codec:    codec,
		det:      det,
		loadOpts: loadOpts,
		exporter: exporter,
	}, nil
}

// OutputDir returns the directory the segments of input are exported to.
func (s *Split) OutputDir(input string) string {
	return outputDir(s.cfg.OutputDir, input, segmentsDirSuffix)
}

// Run returns the paths of the exported segments. Segments exported before a
// failure are left on disk and returned along with the error.
func (s *Split) Run(ctx context.Context, input string) ([]string, error) {
	if err := statInput(input); err != nil {
		return nil, err
	}

	start := time.Now()

	clip, err := s.codec.Load(ctx, input, s.loadOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}

	clips, err := silence.Split(ctx, clip, s.det, s.cfg.Silence)
	if err != nil {
		return nil, fmt.Errorf("failed to split audio: %w", err)
	}

	dir := s.OutputDir(input)
	paths, err := s.exporter.Export(ctx, dir, clips)
	if err != nil {
		return paths, err
	}

	slog.Info("split done",
		slog.String("input", input),
		slog.String("outputDir", dir),
		slog.Int("segments", len(paths)),
		slog.Duration("audioDuration", clip.Duration()),
		slog.Duration("elapsed", time.Since(start)))

	return paths, nil
}

// Turns splits an input file into one WAV file per speaker turn.
type Turns struct {
	cfg      config.TurnsConfig
	codec    Codec
	splitter *turns.Splitter
	exporter *segment.Exporter
}

func NewTurns(cfg config.TurnsConfig, codec Codec) (*Turns, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}

	splitter, err := turns.NewSplitter(cfg.Turns)
	if err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to create splitter: %w", err))
	}

	exporter, err := segment.NewExporter(codec, segment.FormatWAV)
	if err != nil {
		return nil, failure.Configuration(fmt.Errorf("failed to create exporter: %w", err))
	}

	return &Turns{
		cfg:      cfg,
		codec:    codec,
		splitter: splitter,
		exporter: exporter,
	}, nil
}

func (t *Turns) OutputDir(input string) string {
	return outputDir(t.cfg.OutputDir, input, turnsDirSuffix)
}

// Run returns the paths of the exported turns.
func (t *Turns) Run(ctx context.Context, input string) ([]string, error) {
	if err := statInput(input); err != nil {
		return nil, err
	}

	start := time.Now()

	clip, err := t.codec.Load(ctx, input, audio.LoadOptions{Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}

	found, err := t.splitter.Turns(clip)
	if err != nil {
		return nil, fmt.Errorf("failed to find speaker turns: %w", err)
	}

	dir := t.OutputDir(input)
	paths, err := t.exporter.ExportNamed(ctx, dir, turns.Clips(clip, found), func(i int) string {
		return found[i].FileName()
	})
	if err != nil {
		return paths, err
	}

	slog.Info("speaker turns done",
		slog.String("input", input),
		slog.String("outputDir", dir),
		slog.Int("turns", len(paths)),
		slog.Duration("elapsed", time.Since(start)))

	return paths, nil
}
