package whisper

// #cgo linux LDFLAGS: -l:libwhisper.a -lm -lstdc++
// #cgo darwin LDFLAGS: -lwhisper -lstdc++ -framework Accelerate
// #include <whisper.h>
// #include <stdlib.h>
import "C"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"
)

const (
	ModelDefault = "large-v3"
	SampleRate   = 16000
)

// ModelPath returns the location of the GGML file for the named model.
func ModelPath(modelsDir, model string) string {
	return filepath.Join(modelsDir, fmt.Sprintf("ggml-%s.bin", model))
}

type Config struct {
	// The path to the GGML model file to use.
	ModelFile string
	// The number of system threads to use to perform the transcription.
	NumThreads int
	// Whether or not past transcription should be used as prompt.
	NoContext bool
	// Audio context size. Zero uses the model's full 30s window, which long
	// recordings need.
	AudioContext int
	// Whether or not to print progress to stdout (default false).
	PrintProgress bool
	// Language to use when a call does not set one (defaults to autodetection).
	Language string
}

func (c Config) IsValid() error {
	if c == (Config{}) {
		return fmt.Errorf("invalid empty config")
	}

	if c.ModelFile == "" {
		return fmt.Errorf("invalid ModelFile: should not be empty")
	}

	if _, err := os.Stat(c.ModelFile); err != nil {
		return fmt.Errorf("invalid ModelFile: failed to stat model file: %w", err)
	}

	if numCPU := runtime.NumCPU(); c.NumThreads == 0 || c.NumThreads > numCPU {
		return fmt.Errorf("invalid NumThreads: should be in the range [1, %d]", numCPU)
	}

	if c.AudioContext < 0 || c.AudioContext%64 != 0 {
		return fmt.Errorf("invalid AudioContext: should be a non-negative multiple of 64")
	}

	return nil
}

// Context runs a whisper.cpp model. Calls are serialized since the model
// state is shared.
type Context struct {
	mut     sync.Mutex
	cfg     Config
	ctx     *C.struct_whisper_context
	cparams C.struct_whisper_context_params
	params  C.struct_whisper_full_params
}

func NewContext(cfg Config) (*Context, error) {
	var c Context

	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	c.cfg = cfg

	slog.Debug("creating transcription context", slog.Any("cfg", cfg))

	// TODO: verify whether there's any potential optimizations
	// that could be made by using lower level initialization methods
	// such as whisper_init or whisper_init_from_buffer.
	path := C.CString(cfg.ModelFile)
	defer C.free(unsafe.Pointer(path))

	c.cparams = C.whisper_context_default_params()
	c.ctx = C.whisper_init_from_file_with_params(path, c.cparams)
	if c.ctx == nil {
		return nil, fmt.Errorf("failed to load model file")
	}

	c.params = C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	c.params.no_context = C.bool(c.cfg.NoContext)
	c.params.audio_ctx = C.int(c.cfg.AudioContext)
	c.params.n_threads = C.int(c.cfg.NumThreads)
	if c.cfg.Language == "" {
		c.cfg.Language = "auto"
	}
	c.setLanguage(c.cfg.Language)
	c.params.print_progress = C.bool(c.cfg.PrintProgress)

	return &c, nil
}

func (c *Context) setLanguage(lang string) {
	if c.params.language != nil {
		C.free(unsafe.Pointer(c.params.language))
	}
	c.params.language = C.CString(lang)
}

func (c *Context) Destroy() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return fmt.Errorf("context is not initialized")
	}
	C.whisper_free(c.ctx)
	C.free(unsafe.Pointer(c.params.language))
	c.params.language = nil
	c.ctx = nil
	return nil
}

// Recognize transcribes a 16kHz WAV file. An empty language falls back to the
// configured one.
func (c *Context) Recognize(ctx context.Context, audioPath, language string) ([]transcribe.Segment, string, error) {
	clip, err := audio.ReadWAV(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}
	if clip.SampleRate != SampleRate {
		return nil, "", fmt.Errorf("unsupported sample rate %d: should be %d", clip.SampleRate, SampleRate)
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return nil, "", fmt.Errorf("context is not initialized")
	}

	lang := transcribe.BaseLanguage(language)
	if lang == "" {
		lang = c.cfg.Language
	}
	c.setLanguage(lang)

	segments, detected, err := c.transcribe(clip.MonoFloat32())
	if err != nil {
		return nil, "", err
	}

	for i := range segments {
		segments[i].Text = strings.TrimSpace(segments[i].Text)
	}

	return segments, detected, nil
}

func (c *Context) transcribe(samples []float32) ([]transcribe.Segment, string, error) {
	if len(samples) == 0 {
		return nil, "", fmt.Errorf("samples should not be empty")
	}

	ret := C.whisper_full(c.ctx, c.params, (*C.float)(&samples[0]), C.int(len(samples)))
	if ret != 0 {
		return nil, "", fmt.Errorf("whisper_full failed with code %d", ret)
	}

	lang := C.GoString(C.whisper_lang_str(C.whisper_full_lang_id(c.ctx)))

	n := int(C.whisper_full_n_segments(c.ctx))
	segments := make([]transcribe.Segment, n)
	for i := 0; i < n; i++ {
		segments[i].Text = C.GoString(C.whisper_full_get_segment_text(c.ctx, C.int(i)))
		segments[i].StartTS = int64(C.whisper_full_get_segment_t0(c.ctx, C.int(i))) * 10
		segments[i].EndTS = int64(C.whisper_full_get_segment_t1(c.ctx, C.int(i))) * 10
	}

	return segments, lang, nil
}
