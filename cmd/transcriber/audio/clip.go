package audio

import (
	"fmt"
	"math"
	"time"
)

const (
	// MaxAmplitude is the largest magnitude a signed 16-bit sample can take.
	MaxAmplitude = 32768
	BitDepth     = 16
)

// Clip holds decoded audio as interleaved signed 16-bit PCM samples.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (c *Clip) IsValid() error {
	if c == nil {
		return fmt.Errorf("clip should not be nil")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: should be a positive number")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: should be a positive number")
	}
	if len(c.Samples)%c.Channels != 0 {
		return fmt.Errorf("invalid Samples: length %d is not a multiple of %d channels", len(c.Samples), c.Channels)
	}
	return nil
}

// Frames returns the number of sample frames (one sample per channel).
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// DurationMs returns the clip length in whole milliseconds.
func (c *Clip) DurationMs() int {
	if c.SampleRate == 0 {
		return 0
	}
	return int(int64(c.Frames()) * 1000 / int64(c.SampleRate))
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// frameAt maps a millisecond offset to a frame index, clamped to the clip.
func (c *Clip) frameAt(ms int) int {
	if ms <= 0 {
		return 0
	}
	f := int(int64(ms) * int64(c.SampleRate) / 1000)
	return min(f, c.Frames())
}

// Slice returns a copy of the [startMs, endMs) range of the clip. An endMs at
// or past DurationMs includes the trailing frames of the last partial
// millisecond.
func (c *Clip) Slice(startMs, endMs int) *Clip {
	start := c.frameAt(startMs)
	end := c.frameAt(endMs)
	if endMs >= c.DurationMs() {
		end = c.Frames()
	}
	if end < start {
		end = start
	}
	samples := make([]int16, (end-start)*c.Channels)
	copy(samples, c.Samples[start*c.Channels:end*c.Channels])
	return &Clip{
		Samples:    samples,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	}
}

// RMS returns the root mean square over all samples of all channels.
func (c *Clip) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// DBFS returns the loudness relative to full scale. Digital silence is -Inf.
func (c *Clip) DBFS() float64 {
	rms := c.RMS()
	if rms == 0 {
		return math.Inf(-1)
	}
	return RatioToDB(rms / MaxAmplitude)
}

// MonoFloat32 mixes all channels down and scales samples to [-1, 1).
func (c *Clip) MonoFloat32() []float32 {
	frames := c.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < c.Channels; ch++ {
			sum += float32(c.Samples[i*c.Channels+ch])
		}
		out[i] = sum / float32(c.Channels) / MaxAmplitude
	}
	return out
}

// Silent returns a clip of digital silence of the given length and layout.
func Silent(ms, sampleRate, channels int) *Clip {
	frames := int(int64(ms) * int64(sampleRate) / 1000)
	return &Clip{
		Samples:    make([]int16, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Concat joins clips sharing the same layout.
func Concat(clips ...*Clip) (*Clip, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}

	first := clips[0]
	var n int
	for _, c := range clips {
		if c.SampleRate != first.SampleRate || c.Channels != first.Channels {
			return nil, fmt.Errorf("layout mismatch: %dHz/%dch vs %dHz/%dch",
				c.SampleRate, c.Channels, first.SampleRate, first.Channels)
		}
		n += len(c.Samples)
	}

	out := &Clip{
		Samples:    make([]int16, 0, n),
		SampleRate: first.SampleRate,
		Channels:   first.Channels,
	}
	for _, c := range clips {
		out.Samples = append(out.Samples, c.Samples...)
	}

	return out, nil
}

func DBToRatio(db float64) float64 {
	return math.Pow(10, db/20)
}

func RatioToDB(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}
