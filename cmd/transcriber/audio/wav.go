package audio

import (
	"fmt"
	"os"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// ReadWAV decodes a 16-bit PCM WAV file.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.IO(fmt.Errorf("failed to open wav file: %w", err))
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, failure.Conversion(fmt.Errorf("invalid wav file %q", path))
	}
	if dec.BitDepth != BitDepth {
		return nil, failure.Conversion(fmt.Errorf("unsupported bit depth %d: only %d-bit PCM is supported", dec.BitDepth, BitDepth))
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, failure.Conversion(fmt.Errorf("failed to decode wav file: %w", err))
	}

	clip := &Clip{
		Samples:    make([]int16, len(buf.Data)),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}
	for i, s := range buf.Data {
		clip.Samples[i] = int16(s)
	}

	return clip, nil
}

// WriteWAV encodes clip as a 16-bit PCM WAV file, replacing any existing file.
func WriteWAV(path string, clip *Clip) error {
	if err := clip.IsValid(); err != nil {
		return fmt.Errorf("failed to validate clip: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return failure.IO(fmt.Errorf("failed to open output file: %w", err))
	}

	data := make([]int, len(clip.Samples))
	for i, s := range clip.Samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, clip.SampleRate, BitDepth, clip.Channels, wavFormatPCM)
	if err := enc.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: clip.Channels,
			SampleRate:  clip.SampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}); err != nil {
		f.Close()
		return failure.IO(fmt.Errorf("failed to write wav data: %w", err))
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return failure.IO(fmt.Errorf("failed to finalize wav file: %w", err))
	}
	if err := f.Close(); err != nil {
		return failure.IO(fmt.Errorf("failed to close output file: %w", err))
	}

	return nil
}
