package transcribe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	"github.com/stretchr/testify/require"
)

var generatedAt = time.Date(2024, 3, 7, 9, 5, 3, 0, time.Local)

func TestVTTTS(t *testing.T) {
	require.Equal(t, "00:00:00.000", vttTS(0, true))
	require.Equal(t, "00:01:10.000", vttTS(70000, true))
	require.Equal(t, "00:00:00.999", vttTS(999, true))
	require.Equal(t, "00:00:01.100", vttTS(1100, true))
	require.Equal(t, "01:45:45.045", vttTS(6345045, true))

	require.Equal(t, "00:00:00", vttTS(0, false))
	require.Equal(t, "00:00:01", vttTS(999, false))
	require.Equal(t, "00:01:02", vttTS(62200, false))
	require.Equal(t, "01:00:00", vttTS(3600000, false))
}

func TestText(t *testing.T) {
	tcs := []struct {
		name     string
		tr       Transcription
		expected string
	}{
		{
			name: "spaced",
			tr: Transcription{
				GeneratedAt: generatedAt,
				Spaced:      true,
				Segments: []MergedSegment{
					{Speaker: "SPEAKER_00", Text: "hi there"},
					{Speaker: "SPEAKER_01", Text: "ok"},
				},
			},
			expected: "Transcription generated on: 2024-03-07 09:05:03\n\nSPEAKER_00: hi there\n\nSPEAKER_01: ok\n\n",
		},
		{
			name: "one line per utterance",
			tr: Transcription{
				GeneratedAt: generatedAt,
				Segments: []MergedSegment{
					{Speaker: "SPEAKER_A", Text: "hi"},
					{Speaker: "SPEAKER_A", Text: "there"},
				},
			},
			expected: "Transcription generated on: 2024-03-07 09:05:03\n\nSPEAKER_A: hi\nSPEAKER_A: there\n",
		},
		{
			name:     "no speech",
			tr:       Transcription{GeneratedAt: generatedAt, Spaced: true},
			expected: "Transcription generated on: 2024-03-07 09:05:03\n\nNo speech was found in the transcription.\n",
		},
		{
			name: "line breaks are collapsed",
			tr: Transcription{
				GeneratedAt: generatedAt,
				Segments: []MergedSegment{
					{Speaker: "A", Text: "first\nsecond\r\nthird "},
				},
			},
			expected: "Transcription generated on: 2024-03-07 09:05:03\n\nA: first second third\n",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tc.tr.Text(&buf))
			require.Equal(t, tc.expected, buf.String())
		})
	}
}

func TestParseText(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, spaced := range []bool{true, false} {
			t.Run(fmt.Sprintf("spaced=%t", spaced), func(t *testing.T) {
				tr := Transcription{
					GeneratedAt: generatedAt,
					Spaced:      spaced,
					Segments: []MergedSegment{
						{Speaker: "SPEAKER_00", Text: "Olá, tudo bem? Sim: tudo."},
						{Speaker: UnknownSpeaker, Text: "ok"},
						{Speaker: "SPEAKER_00", Text: "tchau"},
					},
				}

				var buf bytes.Buffer
				require.NoError(t, tr.Text(&buf))

				parsed, err := ParseText(&buf)
				require.NoError(t, err)
				require.Equal(t, tr, parsed)
			})
		}
	})

	t.Run("single spaced segment", func(t *testing.T) {
		tr := Transcription{
			GeneratedAt: generatedAt,
			Spaced:      true,
			Segments:    []MergedSegment{{Speaker: "A", Text: "alone"}},
		}
		var buf bytes.Buffer
		require.NoError(t, tr.Text(&buf))

		parsed, err := ParseText(&buf)
		require.NoError(t, err)
		require.Equal(t, tr, parsed)
	})

	t.Run("no speech", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Transcription{GeneratedAt: generatedAt}.Text(&buf))

		parsed, err := ParseText(&buf)
		require.NoError(t, err)
		require.Empty(t, parsed.Segments)
		require.Equal(t, generatedAt, parsed.GeneratedAt)
	})

	t.Run("errors", func(t *testing.T) {
		tcs := []struct {
			name          string
			data          string
			expectedError string
		}{
			{
				name:          "empty",
				data:          "",
				expectedError: "missing header",
			},
			{
				name:          "bad header",
				data:          "hello\n",
				expectedError: `invalid header "hello"`,
			},
			{
				name:          "bad line",
				data:          "Transcription generated on: 2024-03-07 09:05:03\n\nno separator here\n",
				expectedError: "invalid line 3: missing speaker separator",
			},
		}

		for _, tc := range tcs {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ParseText(strings.NewReader(tc.data))
				require.EqualError(t, err, tc.expectedError)
			})
		}
	})
}

func TestWebVTT(t *testing.T) {
	tr := Transcription{
		Segments: []MergedSegment{
			{Speaker: "SPEAKER_00", Text: "a < b", StartTS: 0, EndTS: 1500},
			{Speaker: "SPEAKER_01", Text: "ok", StartTS: 62200, EndTS: 63000},
		},
	}

	t.Run("with speaker", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, tr.WebVTT(&buf, WebVTTOptions{}))
		require.Equal(t, `WEBVTT

00:00:00.000 --> 00:00:01.500
<v SPEAKER_00>(SPEAKER_00) a &lt; b

00:01:02.200 --> 00:01:03.000
<v SPEAKER_01>(SPEAKER_01) ok
`, buf.String())
	})

	t.Run("omit speaker", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, tr.WebVTT(&buf, WebVTTOptions{OmitSpeaker: true}))
		require.Equal(t, `WEBVTT

00:00:00.000 --> 00:00:01.500
a &lt; b

00:01:02.200 --> 00:01:03.000
ok
`, buf.String())
	})
}

func TestWebVTTOptions(t *testing.T) {
	var opts *WebVTTOptions
	require.True(t, opts.IsEmpty())

	opts = &WebVTTOptions{OmitSpeaker: true}
	require.False(t, opts.IsEmpty())
	require.Equal(t, []string{"WEBVTT_OMIT_SPEAKER=true"}, opts.ToEnv())

	var fromMap WebVTTOptions
	fromMap.FromMap(opts.ToMap())
	require.Equal(t, *opts, fromMap)

	t.Setenv("WEBVTT_OMIT_SPEAKER", "true")
	var fromEnv WebVTTOptions
	fromEnv.FromEnv()
	require.Equal(t, *opts, fromEnv)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("overwrites", func(t *testing.T) {
		path := filepath.Join(dir, "out.txt")
		require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0644))

		err := WriteFile(path, func(w io.Writer) error {
			_, err := io.WriteString(w, "new")
			return err
		})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "new", string(data))
	})

	t.Run("missing directory", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "missing", "out.txt"), func(io.Writer) error { return nil })
		require.Error(t, err)
		require.True(t, failure.Is(err, failure.KindIO))
	})

	t.Run("writer failure", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "fail.txt"), func(io.Writer) error {
			return fmt.Errorf("failed to write: disk full")
		})
		require.EqualError(t, err, "failed to write: disk full")
		require.True(t, failure.Is(err, failure.KindIO))
	})
}
