package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	"github.com/stretchr/testify/require"
)

func tone(ms, rate int, amplitude int16) *Clip {
	c := Silent(ms, rate, 1)
	for i := range c.Samples {
		if i%2 == 0 {
			c.Samples[i] = amplitude
		} else {
			c.Samples[i] = -amplitude
		}
	}
	return c
}

func TestClip(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		c := Silent(1500, 16000, 2)
		require.Equal(t, 24000, c.Frames())
		require.Len(t, c.Samples, 48000)
		require.Equal(t, 1500, c.DurationMs())
		require.Equal(t, 1500*time.Millisecond, c.Duration())
	})

	t.Run("slice", func(t *testing.T) {
		c := tone(1000, 8000, 100)
		s := c.Slice(250, 750)
		require.Equal(t, 500, s.DurationMs())
		require.Equal(t, c.SampleRate, s.SampleRate)

		s = c.Slice(900, 5000)
		require.Equal(t, 100, s.DurationMs())

		s = c.Slice(800, 200)
		require.Zero(t, s.Frames())
	})

	t.Run("slice keeps the partial last millisecond", func(t *testing.T) {
		c := &Clip{Samples: make([]int16, 16008), SampleRate: 16000, Channels: 1}
		require.Equal(t, 1000, c.DurationMs())

		require.Equal(t, 16008, c.Slice(0, c.DurationMs()).Frames())
		require.Equal(t, 8008, c.Slice(500, 5000).Frames())
		require.Equal(t, 8000, c.Slice(0, 500).Frames())
	})

	t.Run("dbfs", func(t *testing.T) {
		require.True(t, math.IsInf(Silent(100, 8000, 1).DBFS(), -1))

		c := tone(100, 8000, MaxAmplitude/2)
		require.InDelta(t, -6.02, c.DBFS(), 0.01)
	})

	t.Run("concat", func(t *testing.T) {
		out, err := Concat(Silent(100, 8000, 1), tone(200, 8000, 10))
		require.NoError(t, err)
		require.Equal(t, 300, out.DurationMs())

		_, err = Concat(Silent(100, 8000, 1), Silent(100, 16000, 1))
		require.EqualError(t, err, "layout mismatch: 16000Hz/1ch vs 8000Hz/1ch")

		_, err = Concat()
		require.Error(t, err)
	})

	t.Run("mono float", func(t *testing.T) {
		c := &Clip{Samples: []int16{16384, 0, -32768, -32768}, SampleRate: 8000, Channels: 2}
		require.Equal(t, []float32{0.25, -1}, c.MonoFloat32())
	})

	t.Run("validation", func(t *testing.T) {
		var c *Clip
		require.EqualError(t, c.IsValid(), "clip should not be nil")
		require.EqualError(t, (&Clip{Channels: 1}).IsValid(), "invalid SampleRate: should be a positive number")
		require.EqualError(t, (&Clip{SampleRate: 1}).IsValid(), "invalid Channels: should be a positive number")
		require.EqualError(t, (&Clip{SampleRate: 1, Channels: 2, Samples: []int16{1}}).IsValid(),
			"invalid Samples: length 1 is not a multiple of 2 channels")
	})
}

func TestWAV(t *testing.T) {
	dir := t.TempDir()

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(dir, "tone.wav")
		c := tone(250, 16000, 1234)
		require.NoError(t, WriteWAV(path, c))

		got, err := ReadWAV(path)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		path := filepath.Join(dir, "existing.wav")
		require.NoError(t, os.WriteFile(path, make([]byte, 64*1024), 0644))

		c := tone(10, 8000, 42)
		require.NoError(t, WriteWAV(path, c))

		got, err := ReadWAV(path)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})

	t.Run("unwritable target", func(t *testing.T) {
		err := WriteWAV(filepath.Join(dir, "missing", "tone.wav"), tone(10, 8000, 42))
		require.EqualError(t, err, "failed to open output file: open "+filepath.Join(dir, "missing", "tone.wav")+": no such file or directory")
		require.True(t, failure.Is(err, failure.KindIO))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadWAV(filepath.Join(dir, "missing.wav"))
		require.Error(t, err)
		require.True(t, failure.Is(err, failure.KindIO))
	})

	t.Run("not a wav", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.wav")
		require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0644))
		_, err := ReadWAV(path)
		require.Error(t, err)
		require.True(t, failure.Is(err, failure.KindConversion))
	})
}

func TestPad(t *testing.T) {
	c := tone(1000, 16000, 500)

	t.Run("both", func(t *testing.T) {
		out, err := Pad(c, 2000, PadModeBoth)
		require.NoError(t, err)
		require.Equal(t, 5000, out.DurationMs())
		require.True(t, math.IsInf(out.Slice(0, 2000).DBFS(), -1))
		require.True(t, math.IsInf(out.Slice(3000, 5000).DBFS(), -1))
		require.Equal(t, c.Samples, out.Slice(2000, 3000).Samples)
	})

	t.Run("start", func(t *testing.T) {
		out, err := Pad(c, 2000, PadModeStart)
		require.NoError(t, err)
		require.Equal(t, 3000, out.DurationMs())
		require.Equal(t, c.Samples, out.Slice(2000, 3000).Samples)
	})

	t.Run("zero", func(t *testing.T) {
		out, err := Pad(c, 0, PadModeBoth)
		require.NoError(t, err)
		require.Equal(t, c.Samples, out.Samples)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Pad(c, -1, PadModeBoth)
		require.EqualError(t, err, "padding should not be negative")
		_, err = Pad(c, 10, PadMode("end"))
		require.EqualError(t, err, `invalid pad mode "end"`)
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		in := filepath.Join(dir, "in.wav")
		out := filepath.Join(dir, "out.wav")
		require.NoError(t, WriteWAV(in, c))
		require.NoError(t, PadFile(in, out, 500, PadModeBoth))

		got, err := ReadWAV(out)
		require.NoError(t, err)
		require.Equal(t, 2000, got.DurationMs())
	})
}

type mockRunner struct {
	args   [][]string
	stdin  []byte
	output []byte
	err    error
}

func (m *mockRunner) Run(_ context.Context, stdin io.Reader, args []string) ([]byte, error) {
	m.args = append(m.args, args)
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		m.stdin = data
	}
	return m.output, m.err
}

func TestConvert(t *testing.T) {
	t.Run("arguments", func(t *testing.T) {
		r := &mockRunner{}
		f := NewFFmpegWithRunner(r)
		require.NoError(t, f.Convert(context.Background(), "in.mp3", "out.wav"))
		require.Len(t, r.args, 1)

		args := strings.Join(r.args[0], " ")
		require.Contains(t, args, "-i in.mp3")
		require.Contains(t, args, "-acodec pcm_s16le")
		require.Contains(t, args, "-ac 1")
		require.Contains(t, args, "-ar 16k")
		require.Contains(t, args, "out.wav")
		require.Contains(t, args, "-y")
	})

	t.Run("failure", func(t *testing.T) {
		r := &mockRunner{err: fmt.Errorf("ffmpeg: exit status 1: in.mp3: Invalid data found when processing input")}
		f := NewFFmpegWithRunner(r)
		err := f.Convert(context.Background(), "in.mp3", "out.wav")
		require.Error(t, err)
		require.True(t, failure.Is(err, failure.KindConversion))
		require.Contains(t, err.Error(), "Invalid data found when processing input")
	})
}

func TestLoad(t *testing.T) {
	r := &mockRunner{output: []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x07}}
	f := NewFFmpegWithRunner(r)

	c, err := f.Load(context.Background(), "in.ogg", LoadOptions{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	require.Equal(t, []int16{1, -1, -32768}, c.Samples)
	require.Equal(t, 8000, c.SampleRate)

	args := strings.Join(r.args[0], " ")
	require.Contains(t, args, "-f s16le")
	require.Contains(t, args, "-ar 8000")
	require.Contains(t, args, "pipe:")
}

func TestEncode(t *testing.T) {
	r := &mockRunner{}
	f := NewFFmpegWithRunner(r)
	dir := t.TempDir()

	c := &Clip{Samples: []int16{1, 2}, SampleRate: 8000, Channels: 1}
	require.NoError(t, f.Encode(context.Background(), c, filepath.Join(dir, "segment_0.mp3"), "mp3"))
	require.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, r.stdin)
	require.Contains(t, strings.Join(r.args[0], " "), "-f mp3")

	path := filepath.Join(dir, "segment_0.wav")
	require.NoError(t, f.Encode(context.Background(), c, path, "wav"))
	require.Len(t, r.args, 1)
	require.FileExists(t, path)

	t.Run("unwritable target", func(t *testing.T) {
		tcs := []struct {
			name   string
			format string
		}{
			{name: "mp3", format: "mp3"},
			{name: "wav", format: "wav"},
		}

		for _, tc := range tcs {
			t.Run(tc.name, func(t *testing.T) {
				r := &mockRunner{}
				f := NewFFmpegWithRunner(r)
				out := filepath.Join(dir, "missing", "segment_0."+tc.format)

				err := f.Encode(context.Background(), c, out, tc.format)
				require.ErrorContains(t, err, "failed to open output file")
				require.True(t, failure.Is(err, failure.KindIO))
				require.Empty(t, r.args)
			})
		}
	})

	t.Run("encoder failure", func(t *testing.T) {
		r := &mockRunner{err: fmt.Errorf("ffmpeg: exit status 1: Unknown encoder")}
		f := NewFFmpegWithRunner(r)
		err := f.Encode(context.Background(), c, filepath.Join(dir, "segment_1.mp3"), "mp3")
		require.True(t, failure.Is(err, failure.KindConversion))
	})
}

func TestParseProbe(t *testing.T) {
	tcs := []struct {
		name          string
		data          string
		expected      Info
		expectedError string
	}{
		{
			name: "audio stream",
			data: `{"streams":[{"codec_type":"video"},{"codec_type":"audio","sample_rate":"44100","channels":2}],
				"format":{"duration":"12.500000"}}`,
			expected: Info{SampleRate: 44100, Channels: 2, Duration: 12500 * time.Millisecond},
		},
		{
			name:     "stream duration fallback",
			data:     `{"streams":[{"codec_type":"audio","sample_rate":"16000","channels":1,"duration":"2.0"}],"format":{}}`,
			expected: Info{SampleRate: 16000, Channels: 1, Duration: 2 * time.Second},
		},
		{
			name:          "no audio",
			data:          `{"streams":[{"codec_type":"video"}],"format":{"duration":"1.0"}}`,
			expectedError: "no audio stream found",
		},
		{
			name:          "invalid json",
			data:          `{"streams":`,
			expectedError: "invalid probe output",
		},
		{
			name:          "invalid stream",
			data:          `{"streams":[{"codec_type":"audio","sample_rate":"0","channels":1}]}`,
			expectedError: "invalid audio stream: 0Hz/1ch",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			info, err := parseProbe(tc.data)
			if tc.expectedError != "" {
				require.EqualError(t, err, tc.expectedError)
				require.True(t, failure.Is(err, failure.KindConversion))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, info)
		})
	}
}

func TestFFmpegIntegration(t *testing.T) {
	if !Available() {
		t.Skip("ffmpeg not available")
	}

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	require.NoError(t, WriteWAV(in, &Clip{
		Samples:    make([]int16, 44100*2),
		SampleRate: 44100,
		Channels:   2,
	}))

	f := NewFFmpeg()
	require.NoError(t, f.Convert(context.Background(), in, out))

	c, err := ReadWAV(out)
	require.NoError(t, err)
	require.Equal(t, TargetSampleRate, c.SampleRate)
	require.Equal(t, TargetChannels, c.Channels)
	require.InDelta(t, 1000, c.DurationMs(), 5)

	err = f.Convert(context.Background(), filepath.Join(dir, "missing.mp3"), out)
	require.Error(t, err)
	require.True(t, failure.Is(err, failure.KindConversion))
}
