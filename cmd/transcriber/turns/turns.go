// Package turns splits a recording into speaker turns by clustering
// per-frame MFCC vectors.
package turns

import (
	"fmt"
	"log/slog"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

const (
	NumSpeakersDefault = 2
	FrameMsDefault     = 500
	HopMsDefault       = 250
	NumMFCCDefault     = 13
)

type Options struct {
	// NumSpeakers is the number of clusters frames are partitioned into.
	NumSpeakers int
	FrameMs     int
	HopMs       int
	NumMFCC     int
}

func (o *Options) SetDefaults() {
	if o.NumSpeakers == 0 {
		o.NumSpeakers = NumSpeakersDefault
	}
	if o.FrameMs == 0 {
		o.FrameMs = FrameMsDefault
	}
	if o.HopMs == 0 {
		o.HopMs = HopMsDefault
	}
	if o.NumMFCC == 0 {
		o.NumMFCC = NumMFCCDefault
	}
}

func (o Options) IsValid() error {
	if o.NumSpeakers <= 0 {
		return fmt.Errorf("invalid NumSpeakers: should be a positive number")
	}
	if o.FrameMs <= 0 {
		return fmt.Errorf("invalid FrameMs: should be a positive number")
	}
	if o.HopMs <= 0 || o.HopMs > o.FrameMs {
		return fmt.Errorf("invalid HopMs: should be in the range [1, %d]", o.FrameMs)
	}
	if o.NumMFCC <= 0 || o.NumMFCC > numMels {
		return fmt.Errorf("invalid NumMFCC: should be in the range [1, %d]", numMels)
	}
	return nil
}

// Turn is a contiguous span attributed to one speaker label.
type Turn struct {
	Speaker int
	StartMs int
	EndMs   int
}

// FileName returns speaker_<label>_<start>_<end>.wav with times in seconds.
func (t Turn) FileName() string {
	return fmt.Sprintf("speaker_%d_%.2f_%.2f.wav", t.Speaker, float64(t.StartMs)/1000, float64(t.EndMs)/1000)
}

type Splitter struct {
	opts Options
}

func NewSplitter(opts Options) (*Splitter, error) {
	opts.SetDefaults()
	if err := opts.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate options: %w", err)
	}
	return &Splitter{opts: opts}, nil
}

// Turns labels every analysis frame of clip with a speaker and returns the
// runs of equal labels. Turns are contiguous and cover the whole clip.
func (s *Splitter) Turns(clip *audio.Clip) ([]Turn, error) {
	features := s.features(clip)
	if len(features) == 0 {
		if clip.DurationMs() == 0 {
			return nil, nil
		}
		return []Turn{{Speaker: 0, StartMs: 0, EndMs: clip.DurationMs()}}, nil
	}

	labels, err := cluster(features, s.opts.NumSpeakers)
	if err != nil {
		return nil, err
	}

	turns := turnsFromLabels(labels, s.opts.HopMs, clip.DurationMs())

	slog.Debug("found speaker turns",
		slog.Int("frames", len(features)),
		slog.Int("turns", len(turns)))

	return turns, nil
}

func (s *Splitter) features(clip *audio.Clip) [][]float64 {
	samples := clip.MonoFloat32()
	frameLen := s.opts.FrameMs * clip.SampleRate / 1000
	hop := s.opts.HopMs * clip.SampleRate / 1000
	if frameLen == 0 || hop == 0 || len(samples) < frameLen {
		return nil
	}

	m := newMFCC(clip.SampleRate, s.opts.NumMFCC)
	n := 1 + (len(samples)-frameLen)/hop
	features := make([][]float64, n)
	for i := range features {
		features[i] = m.compute(samples[i*hop : i*hop+frameLen])
	}

	return features
}

// cluster partitions features into k groups. Labels are renumbered in order
// of first appearance so the first frame is always speaker 0.
func cluster(features [][]float64, k int) ([]int, error) {
	if len(features) < k {
		k = len(features)
	}

	obs := make(clusters.Observations, len(features))
	for i, f := range features {
		obs[i] = clusters.Coordinates(f)
	}

	labels := make([]int, len(features))
	if k > 1 {
		cc, err := kmeans.New().Partition(obs, k)
		if err != nil {
			return nil, fmt.Errorf("failed to cluster frames: %w", err)
		}
		for i, o := range obs {
			labels[i] = cc.Nearest(o)
		}
	}

	return canonicalLabels(labels), nil
}

func canonicalLabels(labels []int) []int {
	ids := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out
}

// turnsFromLabels merges runs of equal frame labels. Frame i starts at
// i*hopMs; the final turn always ends at totalMs.
func turnsFromLabels(labels []int, hopMs, totalMs int) []Turn {
	if len(labels) == 0 {
		return nil
	}

	var turns []Turn
	cur := Turn{Speaker: labels[0]}
	for i, l := range labels[1:] {
		if l == cur.Speaker {
			continue
		}
		cur.EndMs = (i + 1) * hopMs
		turns = append(turns, cur)
		cur = Turn{Speaker: l, StartMs: cur.EndMs}
	}
	cur.EndMs = totalMs
	turns = append(turns, cur)

	return turns
}

// Clips cuts clip along turns.
func Clips(clip *audio.Clip, turns []Turn) []*audio.Clip {
	clips := make([]*audio.Clip, len(turns))
	for i, t := range turns {
		clips[i] = clip.Slice(t.StartMs, t.EndMs)
	}
	return clips
}
