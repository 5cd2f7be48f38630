package transcribe

import (
	"context"
	"strings"
	"time"
)

const UnknownSpeaker = "Unknown Speaker"

// Utterance is a contiguous stretch of speech attributed to one speaker.
// Timestamps are in milliseconds; a zero EndTS means timing is unknown.
type Utterance struct {
	Speaker string
	Text    string
	StartTS int64
	EndTS   int64
}

// MergedSegment joins consecutive utterances of the same speaker.
type MergedSegment struct {
	Speaker string
	Text    string
	StartTS int64
	EndTS   int64
}

type Result struct {
	Utterances []Utterance
	Language   string
	Duration   time.Duration
}

type Request struct {
	AudioPath        string
	Language         string
	SpeakersExpected int
	Model            string
}

// Client turns an audio file into speaker-labelled utterances.
type Client interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// Segment is a timed piece of recognized text with no speaker attached.
type Segment struct {
	Text    string
	StartTS int64
	EndTS   int64
}

// SpeakerTurn is a span during which a speaker is talking.
type SpeakerTurn struct {
	Speaker string
	StartTS int64
	EndTS   int64
}

// Recognizer converts speech to timed text. It returns the language used,
// which may differ from the requested one when it was autodetected.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath, language string) ([]Segment, string, error)
}

// Diarizer finds who speaks when.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]SpeakerTurn, error)
}

// BaseLanguage strips the region from a language code, as in en_us or en-US.
func BaseLanguage(lang string) string {
	lang = strings.ToLower(lang)
	if i := strings.IndexAny(lang, "_-"); i > 0 {
		return lang[:i]
	}
	return lang
}
