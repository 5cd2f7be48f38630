// Package silence finds the silent and sound-bearing parts of a clip and
// splits it into one clip per sound-bearing span.
package silence

import (
	"context"
	"fmt"
	"math"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
)

const (
	MinSilenceMsDefault    = 300
	SilenceThreshDBDefault = -50.0
	SeekStepMsDefault      = 1
)

// Interval is a [StartMs, EndMs) range of a clip.
type Interval struct {
	StartMs int
	EndMs   int
}

func (i Interval) DurationMs() int {
	return i.EndMs - i.StartMs
}

// Detector returns the sound-bearing intervals of a clip, in order.
type Detector interface {
	Nonsilent(ctx context.Context, clip *audio.Clip) ([]Interval, error)
}

type Options struct {
	// MinSilenceMs is the shortest run of quiet audio that counts as silence.
	MinSilenceMs int
	// SilenceThreshDB is the loudness, in dBFS, at or below which a window is
	// silent. With RelativeThresh it is an offset from the clip's own dBFS.
	SilenceThreshDB float64
	RelativeThresh  bool
	// KeepSilence retains all bordering silence, splitting it between
	// neighbouring spans. Otherwise KeepSilenceMs is retained on each side.
	KeepSilence   bool
	KeepSilenceMs int
	SeekStepMs    int
}

func (o *Options) SetDefaults() {
	if o.MinSilenceMs == 0 {
		o.MinSilenceMs = MinSilenceMsDefault
	}
	if o.SilenceThreshDB == 0 && !o.RelativeThresh {
		o.SilenceThreshDB = SilenceThreshDBDefault
	}
	if o.SeekStepMs == 0 {
		o.SeekStepMs = SeekStepMsDefault
	}
}

func (o Options) IsValid() error {
	if o.MinSilenceMs <= 0 {
		return fmt.Errorf("invalid MinSilenceMs: should be a positive number")
	}
	if o.SeekStepMs <= 0 {
		return fmt.Errorf("invalid SeekStepMs: should be a positive number")
	}
	if o.KeepSilenceMs < 0 {
		return fmt.Errorf("invalid KeepSilenceMs: should not be negative")
	}
	if o.SilenceThreshDB >= 0 && !o.RelativeThresh {
		return fmt.Errorf("invalid SilenceThreshDB: should be negative")
	}
	return nil
}

// ThresholdDBFS resolves the absolute threshold to use for clip.
func (o Options) ThresholdDBFS(clip *audio.Clip) float64 {
	if o.RelativeThresh {
		return clip.DBFS() + o.SilenceThreshDB
	}
	return o.SilenceThreshDB
}

// KeepMs returns how much bordering silence Split should retain for clip.
func (o Options) KeepMs(clip *audio.Clip) int {
	if o.KeepSilence {
		return clip.DurationMs()
	}
	return o.KeepSilenceMs
}

// EnergyDetector classifies audio as silent by windowed RMS loudness.
type EnergyDetector struct {
	opts Options
}

func NewEnergyDetector(opts Options) (*EnergyDetector, error) {
	opts.SetDefaults()
	if err := opts.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate options: %w", err)
	}
	return &EnergyDetector{opts: opts}, nil
}

func (d *EnergyDetector) Nonsilent(_ context.Context, clip *audio.Clip) ([]Interval, error) {
	return DetectNonsilent(clip, d.opts.MinSilenceMs, d.opts.ThresholdDBFS(clip), d.opts.SeekStepMs), nil
}

// energy holds running sums of squared samples so that the RMS of any window
// is a constant-time lookup.
type energy struct {
	clip   *audio.Clip
	prefix []uint64
}

func newEnergy(clip *audio.Clip) *energy {
	frames := clip.Frames()
	e := &energy{
		clip:   clip,
		prefix: make([]uint64, frames+1),
	}
	for i := 0; i < frames; i++ {
		var sum uint64
		for ch := 0; ch < clip.Channels; ch++ {
			s := int64(clip.Samples[i*clip.Channels+ch])
			sum += uint64(s * s)
		}
		e.prefix[i+1] = e.prefix[i] + sum
	}
	return e
}

func (e *energy) frameAt(ms int) int {
	f := int(int64(ms) * int64(e.clip.SampleRate) / 1000)
	return min(max(f, 0), e.clip.Frames())
}

// rms of the [startMs, endMs) window.
func (e *energy) rms(startMs, endMs int) float64 {
	start, end := e.frameAt(startMs), e.frameAt(endMs)
	n := (end - start) * e.clip.Channels
	if n <= 0 {
		return 0
	}
	return math.Sqrt(float64(e.prefix[end]-e.prefix[start]) / float64(n))
}

// DetectSilence returns the silent intervals of clip: every run of at least
// minSilenceMs whose windowed RMS stays at or below threshDBFS. Windows are
// evaluated every seekStepMs.
func DetectSilence(clip *audio.Clip, minSilenceMs int, threshDBFS float64, seekStepMs int) []Interval {
	length := clip.DurationMs()
	if length < minSilenceMs || minSilenceMs <= 0 {
		return nil
	}
	if seekStepMs <= 0 {
		seekStepMs = SeekStepMsDefault
	}

	thresh := audio.DBToRatio(threshDBFS) * audio.MaxAmplitude
	e := newEnergy(clip)

	var starts []int
	last := length - minSilenceMs
	for i := 0; i <= last; i += seekStepMs {
		if e.rms(i, i+minSilenceMs) <= thresh {
			starts = append(starts, i)
		}
	}
	if last%seekStepMs != 0 && e.rms(last, length) <= thresh {
		starts = append(starts, last)
	}

	if len(starts) == 0 {
		return nil
	}

	var ranges []Interval
	prev := starts[0]
	rangeStart := prev
	for _, s := range starts[1:] {
		continuous := s == prev+seekStepMs
		hasGap := s > prev+minSilenceMs
		if !continuous && hasGap {
			ranges = append(ranges, Interval{StartMs: rangeStart, EndMs: prev + minSilenceMs})
			rangeStart = s
		}
		prev = s
	}
	ranges = append(ranges, Interval{StartMs: rangeStart, EndMs: prev + minSilenceMs})

	return ranges
}

// DetectNonsilent returns the complement of DetectSilence. A clip with no
// silence yields a single interval covering it; a fully silent clip yields none.
func DetectNonsilent(clip *audio.Clip, minSilenceMs int, threshDBFS float64, seekStepMs int) []Interval {
	length := clip.DurationMs()
	silent := DetectSilence(clip, minSilenceMs, threshDBFS, seekStepMs)
	if len(silent) == 0 {
		return []Interval{{StartMs: 0, EndMs: length}}
	}
	if silent[0].StartMs == 0 && silent[0].EndMs == length {
		return nil
	}

	var ranges []Interval
	prevEnd := 0
	for _, s := range silent {
		ranges = append(ranges, Interval{StartMs: prevEnd, EndMs: s.StartMs})
		prevEnd = s.EndMs
	}
	if prevEnd != length {
		ranges = append(ranges, Interval{StartMs: prevEnd, EndMs: length})
	}

	if ranges[0].StartMs == 0 && ranges[0].EndMs == 0 {
		ranges = ranges[1:]
	}

	return ranges
}

// Expand widens every interval by keepMs on both sides. Where widened
// neighbours overlap, the boundary moves to the midpoint of the overlap.
// The result is clipped to [0, lengthMs].
func Expand(ranges []Interval, keepMs, lengthMs int) []Interval {
	out := make([]Interval, len(ranges))
	for i, r := range ranges {
		out[i] = Interval{StartMs: r.StartMs - keepMs, EndMs: r.EndMs + keepMs}
	}

	for i := 0; i+1 < len(out); i++ {
		if out[i+1].StartMs < out[i].EndMs {
			mid := floorDiv(out[i].EndMs+out[i+1].StartMs, 2)
			out[i].EndMs = mid
			out[i+1].StartMs = mid
		}
	}

	for i := range out {
		out[i].StartMs = max(out[i].StartMs, 0)
		out[i].EndMs = min(out[i].EndMs, lengthMs)
	}

	return out
}

// SplitIntervals cuts clip along ranges after retaining keepMs of bordering
// silence around each.
func SplitIntervals(clip *audio.Clip, ranges []Interval, keepMs int) []*audio.Clip {
	expanded := Expand(ranges, keepMs, clip.DurationMs())
	clips := make([]*audio.Clip, 0, len(expanded))
	for _, r := range expanded {
		clips = append(clips, clip.Slice(r.StartMs, r.EndMs))
	}
	return clips
}

// Split returns one clip per sound-bearing span of clip.
func Split(ctx context.Context, clip *audio.Clip, det Detector, opts Options) ([]*audio.Clip, error) {
	ranges, err := det.Nonsilent(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("failed to detect silence: %w", err)
	}
	return SplitIntervals(clip, ranges, opts.KeepMs(clip)), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
