package transcribe

import (
	"log/slog"
	"strings"
)

func speakerOrUnknown(speaker string) string {
	if speaker == "" {
		return UnknownSpeaker
	}
	return speaker
}

// Merge joins consecutive utterances by the same speaker in a single pass.
// Texts are joined with a space and trimmed; a run keeps the StartTS of its
// first utterance and the EndTS of its last.
func Merge(utterances []Utterance) []MergedSegment {
	out := []MergedSegment{}

	for _, u := range utterances {
		speaker := speakerOrUnknown(u.Speaker)
		if n := len(out); n > 0 && out[n-1].Speaker == speaker {
			out[n-1].Text = strings.TrimSpace(out[n-1].Text + " " + u.Text)
			out[n-1].EndTS = u.EndTS
			continue
		}
		out = append(out, MergedSegment{
			Speaker: speaker,
			Text:    strings.TrimSpace(u.Text),
			StartTS: u.StartTS,
			EndTS:   u.EndTS,
		})
	}

	slog.Debug("merge done", slog.Int("inLen", len(utterances)), slog.Int("outLen", len(out)))

	return out
}

// Unmerged maps every utterance to its own segment.
func Unmerged(utterances []Utterance) []MergedSegment {
	out := make([]MergedSegment, len(utterances))
	for i, u := range utterances {
		out[i] = MergedSegment{
			Speaker: speakerOrUnknown(u.Speaker),
			Text:    strings.TrimSpace(u.Text),
			StartTS: u.StartTS,
			EndTS:   u.EndTS,
		}
	}
	return out
}

// Shift moves every timestamp by -offsetMs, clamping at zero. Utterances with
// no timing are left untouched.
func Shift(utterances []Utterance, offsetMs int64) []Utterance {
	out := make([]Utterance, len(utterances))
	for i, u := range utterances {
		out[i] = u
		if offsetMs == 0 || (u.StartTS == 0 && u.EndTS == 0) {
			continue
		}
		out[i].StartTS = max(u.StartTS-offsetMs, 0)
		out[i].EndTS = max(u.EndTS-offsetMs, 0)
	}
	return out
}

// AssignSpeakers attributes each segment to the speaker whose turns overlap it
// the most. Segments overlapping no turn get no speaker.
func AssignSpeakers(segments []Segment, turns []SpeakerTurn) []Utterance {
	out := make([]Utterance, len(segments))
	for i, s := range segments {
		out[i] = Utterance{
			Text:    s.Text,
			StartTS: s.StartTS,
			EndTS:   s.EndTS,
		}

		overlaps := map[string]int64{}
		var best int64
		for _, t := range turns {
			o := min(s.EndTS, t.EndTS) - max(s.StartTS, t.StartTS)
			if o <= 0 {
				continue
			}
			overlaps[t.Speaker] += o
			// Ties go to the speaker seen first.
			if total := overlaps[t.Speaker]; total > best {
				best = total
				out[i].Speaker = t.Speaker
			}
		}
	}
	return out
}
