// Package silero detects speech with the Silero VAD model.
package silero

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/silence"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	ModelFile = "silero_vad.onnx"

	SampleRate = 16000

	thresholdDefault            = 0.5
	minSilenceDurationMsDefault = 300
	speechPadMsDefault          = 30
)

type Config struct {
	// The path to the ONNX model file to use.
	ModelPath string
	// Speech probability above which a window is considered speech.
	Threshold float32
	// Silence needed to close a speech segment.
	MinSilenceDurationMs int
	// Padding added to both sides of each speech segment.
	SpeechPadMs int
}

func (c *Config) SetDefaults(modelsDir string) {
	if c.ModelPath == "" {
		c.ModelPath = filepath.Join(modelsDir, ModelFile)
	}
	if c.Threshold == 0 {
		c.Threshold = thresholdDefault
	}
	if c.MinSilenceDurationMs == 0 {
		c.MinSilenceDurationMs = minSilenceDurationMsDefault
	}
	if c.SpeechPadMs == 0 {
		c.SpeechPadMs = speechPadMsDefault
	}
}

func (c Config) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		return fmt.Errorf("invalid ModelPath: failed to stat model file: %w", err)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("invalid Threshold: should be in the range (0, 1)")
	}
	if c.MinSilenceDurationMs <= 0 {
		return fmt.Errorf("invalid MinSilenceDurationMs: should be a positive number")
	}
	if c.SpeechPadMs < 0 {
		return fmt.Errorf("invalid SpeechPadMs: should not be negative")
	}
	return nil
}

// Detector finds speech spans with the VAD model. The model is stateful so
// calls are serialized.
type Detector struct {
	mut sync.Mutex
	sd  *speech.Detector
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	slog.Debug("creating speech detector", slog.Any("cfg", cfg))

	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           SampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: cfg.MinSilenceDurationMs,
		SpeechPadMs:          cfg.SpeechPadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}

	return &Detector{sd: sd}, nil
}

// Nonsilent returns the speech spans of clip, which must be 16kHz. Channels
// are mixed down before detection.
func (d *Detector) Nonsilent(_ context.Context, clip *audio.Clip) ([]silence.Interval, error) {
	if clip.SampleRate != SampleRate {
		return nil, fmt.Errorf("unsupported sample rate %d: should be %d", clip.SampleRate, SampleRate)
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	if err := d.sd.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset speech detector: %w", err)
	}

	segments, err := d.sd.Detect(clip.MonoFloat32())
	if err != nil {
		return nil, fmt.Errorf("failed to detect speech: %w", err)
	}

	return toIntervals(segments, clip.DurationMs()), nil
}

func (d *Detector) Destroy() error {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.sd.Destroy()
}

// toIntervals converts detector segments, in seconds, to millisecond
// intervals. A segment still open at the end of the audio has a zero end.
func toIntervals(segments []speech.Segment, lengthMs int) []silence.Interval {
	intervals := make([]silence.Interval, 0, len(segments))
	for _, s := range segments {
		iv := silence.Interval{
			StartMs: int(s.SpeechStartAt * 1000),
			EndMs:   int(s.SpeechEndAt * 1000),
		}
		if iv.EndMs == 0 || iv.EndMs > lengthMs {
			iv.EndMs = lengthMs
		}
		if iv.StartMs >= iv.EndMs {
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals
}
