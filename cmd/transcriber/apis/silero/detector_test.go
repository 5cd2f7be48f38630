package silero

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/silence"

	"github.com/streamer45/silero-vad-go/speech"
	"github.com/stretchr/testify/require"
)

func TestToIntervals(t *testing.T) {
	tcs := []struct {
		name     string
		segments []speech.Segment
		expected []silence.Interval
	}{
		{
			name:     "empty",
			expected: []silence.Interval{},
		},
		{
			name: "closed segments",
			segments: []speech.Segment{
				{SpeechStartAt: 0.25, SpeechEndAt: 1.5},
				{SpeechStartAt: 2, SpeechEndAt: 3.125},
			},
			expected: []silence.Interval{{StartMs: 250, EndMs: 1500}, {StartMs: 2000, EndMs: 3125}},
		},
		{
			name: "open segment runs to the end",
			segments: []speech.Segment{
				{SpeechStartAt: 4},
			},
			expected: []silence.Interval{{StartMs: 4000, EndMs: 5000}},
		},
		{
			name: "clamped to length",
			segments: []speech.Segment{
				{SpeechStartAt: 4.5, SpeechEndAt: 6},
				{SpeechStartAt: 5.5, SpeechEndAt: 6},
			},
			expected: []silence.Interval{{StartMs: 4500, EndMs: 5000}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, toIntervals(tc.segments, 5000))
		})
	}
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, ModelFile)
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0644))

	var cfg Config
	cfg.SetDefaults(dir)
	require.Equal(t, Config{
		ModelPath:            model,
		Threshold:            thresholdDefault,
		MinSilenceDurationMs: minSilenceDurationMsDefault,
		SpeechPadMs:          speechPadMsDefault,
	}, cfg)
	require.NoError(t, cfg.IsValid())

	tcs := []struct {
		name          string
		cfg           Config
		expectedError string
	}{
		{
			name:          "empty model path",
			cfg:           Config{},
			expectedError: "invalid ModelPath: should not be empty",
		},
		{
			name:          "threshold",
			cfg:           Config{ModelPath: model, Threshold: 1, MinSilenceDurationMs: 1},
			expectedError: "invalid Threshold: should be in the range (0, 1)",
		},
		{
			name:          "min silence",
			cfg:           Config{ModelPath: model, Threshold: 0.5},
			expectedError: "invalid MinSilenceDurationMs: should be a positive number",
		},
		{
			name:          "speech pad",
			cfg:           Config{ModelPath: model, Threshold: 0.5, MinSilenceDurationMs: 1, SpeechPadMs: -1},
			expectedError: "invalid SpeechPadMs: should not be negative",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.EqualError(t, tc.cfg.IsValid(), tc.expectedError)
		})
	}
}
