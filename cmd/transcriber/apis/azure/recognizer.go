// Package azure recognizes speech through the Azure AI Speech service.
package azure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"

	sdkaudio "github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

const (
	LocaleDefault = "en-US"
	SampleRate    = 16000

	writeChunkSize = 32 * 1024
)

type Config struct {
	SpeechKey    string
	SpeechRegion string
}

func (c Config) IsValid() error {
	if c.SpeechKey == "" {
		return fmt.Errorf("invalid SpeechKey: should not be empty")
	}

	if c.SpeechRegion == "" {
		return fmt.Errorf("invalid SpeechRegion: should not be empty")
	}

	return nil
}

type Recognizer struct {
	cfg Config
}

func NewRecognizer(cfg Config) (*Recognizer, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &Recognizer{
		cfg: cfg,
	}, nil
}

// collector gathers recognition events until the session ends.
type collector struct {
	mut      sync.Mutex
	segments []transcribe.Segment
	err      error
	doneCh   chan struct{}
	once     sync.Once
}

func newCollector() *collector {
	return &collector{doneCh: make(chan struct{})}
}

func (c *collector) add(result *speech.SpeechRecognitionResult) {
	if result.Reason != common.RecognizedSpeech {
		return
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	c.segments = append(c.segments, transcribe.Segment{
		Text:    text,
		StartTS: result.Offset.Milliseconds(),
		EndTS:   (result.Offset + result.Duration).Milliseconds(),
	})
}

func (c *collector) finish(err error) {
	c.once.Do(func() {
		c.mut.Lock()
		c.err = err
		c.mut.Unlock()
		close(c.doneCh)
	})
}

func (c *collector) result() ([]transcribe.Segment, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.segments, c.err
}

// Recognize transcribes a 16kHz mono WAV file using continuous recognition.
func (r *Recognizer) Recognize(ctx context.Context, audioPath, language string) ([]transcribe.Segment, string, error) {
	clip, err := audio.ReadWAV(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}
	if clip.SampleRate != SampleRate || clip.Channels != 1 {
		return nil, "", fmt.Errorf("unsupported audio layout %dHz/%dch: should be %dHz/1ch", clip.SampleRate, clip.Channels, SampleRate)
	}

	locale := Locale(language)

	cfg, err := speech.NewSpeechConfigFromSubscription(r.cfg.SpeechKey, r.cfg.SpeechRegion)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create speech config: %w", err)
	}
	defer cfg.Close()

	if err := cfg.SetSpeechRecognitionLanguage(locale); err != nil {
		return nil, "", fmt.Errorf("failed to set recognition language: %w", err)
	}

	stream, err := sdkaudio.CreatePushAudioInputStream()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio stream: %w", err)
	}
	defer stream.Close()

	audioConfig, err := sdkaudio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio config: %w", err)
	}
	defer audioConfig.Close()

	recognizer, err := speech.NewSpeechRecognizerFromConfig(cfg, audioConfig)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create speech recognizer: %w", err)
	}
	defer recognizer.Close()

	col := newCollector()

	recognizer.SessionStarted(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("session started", slog.String("sessionID", event.SessionID))
	})
	recognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("session stopped", slog.String("sessionID", event.SessionID))
		col.finish(nil)
	})
	recognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.Reason == common.Error {
			col.finish(fmt.Errorf("recognition canceled: %s", event.ErrorDetails))
			return
		}
		col.finish(nil)
	})
	recognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		col.add(&event.Result)
	})

	if err := <-recognizer.StartContinuousRecognitionAsync(); err != nil {
		return nil, "", fmt.Errorf("failed to start recognizer: %w", err)
	}
	defer func() {
		if err := <-recognizer.StopContinuousRecognitionAsync(); err != nil {
			slog.Error("failed to stop recognizer", slog.String("err", err.Error()))
		}
	}()

	data := pcmBytes(clip)
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		n := min(len(data), writeChunkSize)
		if err := stream.Write(data[:n]); err != nil {
			return nil, "", fmt.Errorf("failed to write audio data: %w", err)
		}
		data = data[n:]
	}

	// Flushes any buffered audio and lets the session end.
	stream.CloseStream()

	select {
	case <-col.doneCh:
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}

	segments, err := col.result()
	if err != nil {
		return nil, "", err
	}

	slog.Debug("recognition done",
		slog.Int("segments", len(segments)),
		slog.String("locale", locale))

	return segments, transcribe.BaseLanguage(locale), nil
}
