package transcribe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
)

const (
	textHeaderPrefix = "Transcription generated on: "
	textTimeLayout   = "2006-01-02 15:04:05"
	NoSpeechText     = "No speech was found in the transcription."
)

// Transcription is what gets written to disk for one input file.
type Transcription struct {
	Segments    []MergedSegment
	GeneratedAt time.Time
	// Spaced separates segments with a blank line, as done for merged output.
	Spaced bool
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func (s *MergedSegment) sanitize(fns ...func(string) string) {
	s.Speaker = strings.TrimSpace(lineBreaks.Replace(s.Speaker))
	s.Text = strings.TrimSpace(lineBreaks.Replace(s.Text))
	for _, fn := range fns {
		s.Speaker = fn(s.Speaker)
		s.Text = fn(s.Text)
	}
}

// Text writes the header followed by one "SPEAKER: text" line per segment.
func (t Transcription) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s%s\n\n", textHeaderPrefix, t.GeneratedAt.Format(textTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	if len(t.Segments) == 0 {
		if _, err := fmt.Fprintf(w, "%s\n", NoSpeechText); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
		return nil
	}

	sep := "\n"
	if t.Spaced {
		sep = "\n\n"
	}

	for _, s := range t.Segments {
		s.sanitize()
		if _, err := fmt.Fprintf(w, "%s: %s%s", s.Speaker, s.Text, sep); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	return nil
}

// ParseText reads back what Text wrote. Timestamps are not part of the text
// format and come back as zero.
func ParseText(r io.Reader) (Transcription, error) {
	var t Transcription

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return t, fmt.Errorf("failed to read: %w", err)
		}
		return t, fmt.Errorf("missing header")
	}

	header := scanner.Text()
	if !strings.HasPrefix(header, textHeaderPrefix) {
		return t, fmt.Errorf("invalid header %q", header)
	}
	ts, err := time.ParseInLocation(textTimeLayout, strings.TrimPrefix(header, textHeaderPrefix), time.Local)
	if err != nil {
		return t, fmt.Errorf("failed to parse header time: %w", err)
	}
	t.GeneratedAt = ts

	var blank bool
	for n := 2; scanner.Scan(); n++ {
		line := scanner.Text()
		if line == "" {
			blank = len(t.Segments) > 0
			continue
		}
		if line == NoSpeechText && len(t.Segments) == 0 {
			continue
		}

		speaker, text, ok := strings.Cut(line, ": ")
		if !ok {
			return t, fmt.Errorf("invalid line %d: missing speaker separator", n)
		}
		if blank {
			t.Spaced = true
		}
		t.Segments = append(t.Segments, MergedSegment{Speaker: speaker, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return t, fmt.Errorf("failed to read: %w", err)
	}

	// A single segment written spaced leaves a trailing blank line only.
	if len(t.Segments) == 1 && blank {
		t.Spaced = true
	}

	return t, nil
}

// WriteFile creates or truncates path and fills it with write.
func WriteFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return failure.IO(fmt.Errorf("failed to create file: %w", err))
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return failure.IO(err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return failure.IO(fmt.Errorf("failed to flush: %w", err))
	}
	if err := f.Close(); err != nil {
		return failure.IO(fmt.Errorf("failed to close file: %w", err))
	}

	return nil
}
