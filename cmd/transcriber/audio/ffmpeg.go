package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"github.com/tidwall/gjson"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Runner executes an ffmpeg command line, returning what it wrote to stdout.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, args []string) ([]byte, error)
}

type execRunner struct {
	path string
}

func (r execRunner) Run(ctx context.Context, stdin io.Reader, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(r.path), err, lastLine(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// lastLine returns the final non-empty line of ffmpeg's diagnostics, which is
// where it reports the actual failure.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

type probeFunc func(path string) (string, error)

// FFmpeg wraps the ffmpeg and ffprobe executables.
type FFmpeg struct {
	runner Runner
	probe  probeFunc
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		runner: execRunner{path: "ffmpeg"},
		probe: func(path string) (string, error) {
			return ffmpeg.Probe(path)
		},
	}
}

// NewFFmpegWithRunner returns an FFmpeg that delegates execution to r.
func NewFFmpegWithRunner(r Runner) *FFmpeg {
	f := NewFFmpeg()
	f.runner = r
	return f
}

// Available reports whether the ffmpeg executable can be found.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Convert re-encodes in as 16-bit mono 16kHz PCM WAV at out, overwriting out.
func (f *FFmpeg) Convert(ctx context.Context, in, out string) error {
	args := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"acodec": "pcm_s16le",
			"ac":     strconv.Itoa(TargetChannels),
			"ar":     "16k",
		}).
		OverWriteOutput().
		GetArgs()

	start := time.Now()
	if _, err := f.runner.Run(ctx, nil, args); err != nil {
		return failure.Conversion(fmt.Errorf("failed to convert %q: %w", in, err))
	}

	slog.Debug("converted audio",
		slog.String("input", in),
		slog.String("output", out),
		slog.Duration("elapsed", time.Since(start)))

	return nil
}

type LoadOptions struct {
	// SampleRate forces resampling when positive.
	SampleRate int
	// Channels forces a channel count when positive.
	Channels int
}

// Load decodes any format ffmpeg understands into a Clip. Without forced
// options the source layout, as reported by Probe, is kept.
func (f *FFmpeg) Load(ctx context.Context, path string, opts LoadOptions) (*Clip, error) {
	rate, channels := opts.SampleRate, opts.Channels
	if rate <= 0 || channels <= 0 {
		info, err := f.Probe(path)
		if err != nil {
			return nil, err
		}
		if rate <= 0 {
			rate = info.SampleRate
		}
		if channels <= 0 {
			channels = info.Channels
		}
	}

	args := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"f":      "s16le",
			"acodec": "pcm_s16le",
			"ar":     strconv.Itoa(rate),
			"ac":     strconv.Itoa(channels),
		}).
		GetArgs()

	data, err := f.runner.Run(ctx, nil, args)
	if err != nil {
		return nil, failure.Conversion(fmt.Errorf("failed to decode %q: %w", path, err))
	}

	clip := &Clip{
		Samples:    make([]int16, len(data)/2),
		SampleRate: rate,
		Channels:   channels,
	}
	if err := binary.Read(bytes.NewReader(data[:len(clip.Samples)*2]), binary.LittleEndian, clip.Samples); err != nil {
		return nil, failure.Conversion(fmt.Errorf("failed to read samples: %w", err))
	}
	// Drop a trailing partial frame.
	clip.Samples = clip.Samples[:clip.Frames()*channels]

	return clip, nil
}

// Encode writes clip to out in the given container format.
func (f *FFmpeg) Encode(ctx context.Context, clip *Clip, out, format string) error {
	if format == "wav" {
		return WriteWAV(out, clip)
	}

	// An unwritable target is an I/O failure, not a conversion one.
	if err := createOutput(out); err != nil {
		return err
	}

	var pcm bytes.Buffer
	if err := binary.Write(&pcm, binary.LittleEndian, clip.Samples); err != nil {
		return fmt.Errorf("failed to serialize samples: %w", err)
	}

	args := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":  "s16le",
		"ar": strconv.Itoa(clip.SampleRate),
		"ac": strconv.Itoa(clip.Channels),
	}).
		Output(out, ffmpeg.KwArgs{"f": format}).
		OverWriteOutput().
		GetArgs()

	if _, err := f.runner.Run(ctx, &pcm, args); err != nil {
		return failure.Conversion(fmt.Errorf("failed to encode %q: %w", out, err))
	}

	return nil
}

func createOutput(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return failure.IO(fmt.Errorf("failed to open output file: %w", err))
	}
	if err := f.Close(); err != nil {
		return failure.IO(fmt.Errorf("failed to close output file: %w", err))
	}
	return nil
}

type Info struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Probe reads stream metadata with ffprobe.
func (f *FFmpeg) Probe(path string) (Info, error) {
	data, err := f.probe(path)
	if err != nil {
		return Info{}, failure.Conversion(fmt.Errorf("failed to probe %q: %w", path, err))
	}
	return parseProbe(data)
}

func parseProbe(data string) (Info, error) {
	if !gjson.Valid(data) {
		return Info{}, failure.Conversion(fmt.Errorf("invalid probe output"))
	}

	stream := gjson.Get(data, `streams.#(codec_type=="audio")`)
	if !stream.Exists() {
		return Info{}, failure.Conversion(fmt.Errorf("no audio stream found"))
	}

	info := Info{
		SampleRate: int(stream.Get("sample_rate").Int()),
		Channels:   int(stream.Get("channels").Int()),
	}

	dur := gjson.Get(data, "format.duration")
	if !dur.Exists() {
		dur = stream.Get("duration")
	}
	info.Duration = time.Duration(dur.Float() * float64(time.Second))

	if info.SampleRate <= 0 || info.Channels <= 0 {
		return Info{}, failure.Conversion(fmt.Errorf("invalid audio stream: %dHz/%dch", info.SampleRate, info.Channels))
	}

	return info, nil
}
