package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.NoError(t, IO(nil))
		require.NoError(t, Conversion(nil))
		require.Equal(t, KindUnknown, KindOf(nil))
		require.False(t, Is(nil, KindUnknown))
	})

	t.Run("message is preserved", func(t *testing.T) {
		err := Conversion(fmt.Errorf("ffmpeg exited: invalid data"))
		require.EqualError(t, err, "ffmpeg exited: invalid data")
		require.True(t, Is(err, KindConversion))
	})

	t.Run("kind survives further wrapping", func(t *testing.T) {
		err := fmt.Errorf("failed to convert input: %w", IO(errors.New("no space left on device")))
		require.Equal(t, KindIO, KindOf(err))
	})

	t.Run("existing kind is kept", func(t *testing.T) {
		inner := IO(errors.New("read failed"))
		err := Transcription(fmt.Errorf("failed to transcribe: %w", inner))
		require.Equal(t, KindIO, KindOf(err))
	})

	t.Run("unwrap", func(t *testing.T) {
		sentinel := errors.New("sentinel")
		err := Transcription(sentinel)
		require.ErrorIs(t, err, sentinel)
	})
}

func TestKindString(t *testing.T) {
	tcs := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindConfiguration, "configuration"},
		{KindConversion, "conversion"},
		{KindTranscription, "transcription"},
		{KindIO, "io"},
	}

	for _, tc := range tcs {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.kind.String())
		})
	}
}
