package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"

	"golang.org/x/sync/errgroup"
)

// Composite builds a Client out of a local Recognizer and an optional
// Diarizer. Both run concurrently on the same file.
type Composite struct {
	rec Recognizer
	dia Diarizer
}

func NewComposite(rec Recognizer, dia Diarizer) (*Composite, error) {
	if rec == nil {
		return nil, fmt.Errorf("invalid recognizer: should not be nil")
	}
	return &Composite{rec: rec, dia: dia}, nil
}

func (c *Composite) Transcribe(ctx context.Context, req Request) (Result, error) {
	var (
		segments []Segment
		turns    []SpeakerTurn
		lang     string
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		segments, lang, err = c.rec.Recognize(gctx, req.AudioPath, req.Language)
		if err != nil {
			return fmt.Errorf("failed to recognize speech: %w", err)
		}
		return nil
	})

	if c.dia != nil {
		g.Go(func() error {
			var err error
			turns, err = c.dia.Diarize(gctx, req.AudioPath, req.SpeakersExpected)
			if err != nil {
				return fmt.Errorf("failed to diarize: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, failure.Transcription(err)
	}

	slog.Debug("composite transcription done",
		slog.Int("segments", len(segments)),
		slog.Int("turns", len(turns)),
		slog.Duration("elapsed", time.Since(start)))

	return Result{
		Utterances: AssignSpeakers(segments, turns),
		Language:   lang,
	}, nil
}
