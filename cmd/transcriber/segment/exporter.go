// Package segment writes split audio spans to numbered files.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
)

type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"

	FormatDefault = FormatMP3
)

func (f Format) IsValid() bool {
	switch f {
	case FormatMP3, FormatWAV:
		return true
	default:
		return false
	}
}

// Encoder writes a clip to a file in a container format.
type Encoder interface {
	Encode(ctx context.Context, clip *audio.Clip, out, format string) error
}

type Exporter struct {
	enc    Encoder
	format Format
}

func NewExporter(enc Encoder, format Format) (*Exporter, error) {
	if enc == nil {
		return nil, fmt.Errorf("invalid encoder: should not be nil")
	}
	if !format.IsValid() {
		return nil, fmt.Errorf("invalid format %q", format)
	}
	return &Exporter{enc: enc, format: format}, nil
}

// FileName returns the name of the i-th segment.
func (e *Exporter) FileName(i int) string {
	return fmt.Sprintf("segment_%d.%s", i, e.format)
}

// Export writes clips[i] to dir/segment_<i>.<format>, creating dir if needed.
// Files written before a failure are left in place.
func (e *Exporter) Export(ctx context.Context, dir string, clips []*audio.Clip) ([]string, error) {
	return e.ExportNamed(ctx, dir, clips, e.FileName)
}

// ExportNamed is like Export but names files with name.
func (e *Exporter) ExportNamed(ctx context.Context, dir string, clips []*audio.Clip, name func(i int) string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, failure.IO(fmt.Errorf("failed to create output directory: %w", err))
	}

	paths := make([]string, 0, len(clips))
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		path := filepath.Join(dir, name(i))
		if err := e.enc.Encode(ctx, clip, path, string(e.format)); err != nil {
			return paths, fmt.Errorf("failed to export segment %d: %w", i, err)
		}

		slog.Debug("exported segment",
			slog.String("path", path),
			slog.Int("durationMs", clip.DurationMs()))

		paths = append(paths, path)
	}

	return paths, nil
}
