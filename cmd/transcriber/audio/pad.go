package audio

import (
	"fmt"
	"log/slog"
)

// PaddingDefaultMs is the amount of silence added around the audio before
// recognition. Timestamps reported on padded audio are shifted back by the
// same amount.
const PaddingDefaultMs = 45000

type PadMode string

const (
	PadModeStart PadMode = "start"
	PadModeBoth  PadMode = "both"

	PadModeDefault = PadModeBoth
)

func (m PadMode) IsValid() bool {
	switch m {
	case PadModeStart, PadModeBoth:
		return true
	default:
		return false
	}
}

// Pad returns a new clip with ms of silence prepended and, in PadModeBoth,
// appended as well.
func Pad(clip *Clip, ms int, mode PadMode) (*Clip, error) {
	if ms < 0 {
		return nil, fmt.Errorf("padding should not be negative")
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid pad mode %q", mode)
	}

	silence := Silent(ms, clip.SampleRate, clip.Channels)
	if mode == PadModeBoth {
		return Concat(silence, clip, silence)
	}
	return Concat(silence, clip)
}

// PadFile pads the WAV file at in and writes the result to out.
func PadFile(in, out string, ms int, mode PadMode) error {
	clip, err := ReadWAV(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	padded, err := Pad(clip, ms, mode)
	if err != nil {
		return fmt.Errorf("failed to pad audio: %w", err)
	}

	if err := WriteWAV(out, padded); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	slog.Debug("added silence padding",
		slog.Int("paddingMs", ms),
		slog.String("mode", string(mode)),
		slog.String("output", out))

	return nil
}
