package segment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	"github.com/stretchr/testify/require"
)

type wavEncoder struct{}

func (wavEncoder) Encode(_ context.Context, clip *audio.Clip, out, _ string) error {
	return audio.WriteWAV(out, clip)
}

type failingEncoder struct {
	after int
	n     int
}

func (e *failingEncoder) Encode(_ context.Context, clip *audio.Clip, out, _ string) error {
	if e.n == e.after {
		return failure.Conversion(fmt.Errorf("encoder crashed"))
	}
	e.n++
	return audio.WriteWAV(out, clip)
}

type nopRunner struct{}

func (nopRunner) Run(context.Context, io.Reader, []string) ([]byte, error) {
	return nil, nil
}

func TestNewExporter(t *testing.T) {
	_, err := NewExporter(nil, FormatWAV)
	require.EqualError(t, err, "invalid encoder: should not be nil")

	_, err = NewExporter(wavEncoder{}, Format("flac"))
	require.EqualError(t, err, `invalid format "flac"`)

	e, err := NewExporter(wavEncoder{}, FormatDefault)
	require.NoError(t, err)
	require.Equal(t, "segment_3.mp3", e.FileName(3))
}

func TestExport(t *testing.T) {
	clips := []*audio.Clip{
		audio.Silent(100, 8000, 1),
		audio.Silent(200, 8000, 1),
		audio.Silent(300, 8000, 1),
	}

	t.Run("writes every segment", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		e, err := NewExporter(wavEncoder{}, FormatWAV)
		require.NoError(t, err)

		paths, err := e.Export(context.Background(), dir, clips)
		require.NoError(t, err)
		require.Equal(t, []string{
			filepath.Join(dir, "segment_0.wav"),
			filepath.Join(dir, "segment_1.wav"),
			filepath.Join(dir, "segment_2.wav"),
		}, paths)

		for i, p := range paths {
			c, err := audio.ReadWAV(p)
			require.NoError(t, err)
			require.Equal(t, clips[i].DurationMs(), c.DurationMs())
		}
	})

	t.Run("no clips", func(t *testing.T) {
		dir := t.TempDir()
		e, err := NewExporter(wavEncoder{}, FormatWAV)
		require.NoError(t, err)

		paths, err := e.Export(context.Background(), dir, nil)
		require.NoError(t, err)
		require.Empty(t, paths)
	})

	t.Run("partial output is kept", func(t *testing.T) {
		dir := t.TempDir()
		e, err := NewExporter(&failingEncoder{after: 2}, FormatWAV)
		require.NoError(t, err)

		paths, err := e.Export(context.Background(), dir, clips)
		require.EqualError(t, err, "failed to export segment 2: encoder crashed")
		require.True(t, failure.Is(err, failure.KindConversion))
		require.Len(t, paths, 2)
		for _, p := range paths {
			require.FileExists(t, p)
		}
		require.NoFileExists(t, filepath.Join(dir, "segment_2.wav"))
	})

	t.Run("directory cannot be created", func(t *testing.T) {
		base := t.TempDir()
		blocker := filepath.Join(base, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		e, err := NewExporter(wavEncoder{}, FormatWAV)
		require.NoError(t, err)

		_, err = e.Export(context.Background(), filepath.Join(blocker, "out"), clips)
		require.Error(t, err)
		require.True(t, failure.Is(err, failure.KindIO))
	})

	t.Run("unwritable segment", func(t *testing.T) {
		for _, format := range []Format{FormatMP3, FormatWAV} {
			t.Run(string(format), func(t *testing.T) {
				dir := t.TempDir()
				e, err := NewExporter(audio.NewFFmpegWithRunner(nopRunner{}), format)
				require.NoError(t, err)
				require.NoError(t, os.Mkdir(filepath.Join(dir, e.FileName(0)), 0755))

				paths, err := e.Export(context.Background(), dir, clips)
				require.ErrorContains(t, err, "failed to export segment 0: failed to open output file")
				require.True(t, failure.Is(err, failure.KindIO))
				require.Empty(t, paths)
			})
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		e, err := NewExporter(wavEncoder{}, FormatWAV)
		require.NoError(t, err)

		paths, err := e.Export(ctx, t.TempDir(), clips)
		require.ErrorIs(t, err, context.Canceled)
		require.Empty(t, paths)
	})
}
