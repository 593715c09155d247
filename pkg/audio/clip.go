// Package audio provides the immutable decoded clip used by every stage of
// the narration engine, plus the sample-level helpers built on it.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Clip is a decoded audio buffer: interleaved float32 samples in [-1, 1].
//
// A Clip is immutable once constructed. Every transform returns a new Clip
// and accessors never hand out the backing array, so a Clip can be shared
// between goroutines without locking.
type Clip struct {
	samples    []float32
	sampleRate int
	channels   int
}

// NewClip copies samples into a new Clip.
func NewClip(samples []float32, sampleRate, channels int) (Clip, error) {
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return Clip{}, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return Clip{}, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	buf := make([]float32, len(samples))
	copy(buf, samples)
	return Clip{samples: buf, sampleRate: sampleRate, channels: channels}, nil
}

// Silence returns a zero-filled clip of the given frame count.
func Silence(frames, sampleRate, channels int) Clip {
	if frames < 0 {
		frames = 0
	}
	return Clip{
		samples:    make([]float32, frames*channels),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// wrap adopts buf without copying. Only for buffers the caller just allocated.
func wrap(buf []float32, sampleRate, channels int) Clip {
	return Clip{samples: buf, sampleRate: sampleRate, channels: channels}
}

// SampleRate returns the clip sample rate in Hz.
func (c Clip) SampleRate() int { return c.sampleRate }

// Channels returns the number of interleaved channels.
func (c Clip) Channels() int { return c.channels }

// Frames returns the number of sample frames.
func (c Clip) Frames() int {
	if c.channels == 0 {
		return 0
	}
	return len(c.samples) / c.channels
}

// Duration is always derived from the frame count and sample rate.
func (c Clip) Duration() time.Duration {
	if c.sampleRate == 0 {
		return 0
	}
	return FramesToDuration(c.Frames(), c.sampleRate)
}

// Seconds returns the duration as floating point seconds without rounding.
func (c Clip) Seconds() float64 {
	if c.sampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.sampleRate)
}

// IsZero reports whether the clip was never constructed.
func (c Clip) IsZero() bool {
	return c.sampleRate == 0 && c.channels == 0 && c.samples == nil
}

// Empty reports whether the clip holds no frames.
func (c Clip) Empty() bool { return len(c.samples) == 0 }

// Samples returns a copy of the interleaved samples.
func (c Clip) Samples() []float32 {
	out := make([]float32, len(c.samples))
	copy(out, c.samples)
	return out
}

// Sample returns one sample value.
func (c Clip) Sample(frame, channel int) float32 {
	return c.samples[frame*c.channels+channel]
}

// Channel returns a de-interleaved copy of one channel.
func (c Clip) Channel(ch int) []float64 {
	n := c.Frames()
	out := make([]float64, n)
	for i := range n {
		out[i] = float64(c.samples[i*c.channels+ch])
	}
	return out
}

// FromChannels interleaves per-channel buffers into a new clip. All channels
// must have the same length.
func FromChannels(chans [][]float64, sampleRate int) (Clip, error) {
	if len(chans) == 0 {
		return Clip{}, errors.New("no channels")
	}
	n := len(chans[0])
	for i, ch := range chans {
		if len(ch) != n {
			return Clip{}, fmt.Errorf("channel %d has %d frames, want %d", i, len(ch), n)
		}
	}
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	nch := len(chans)
	buf := make([]float32, n*nch)
	for ch, data := range chans {
		for i, v := range data {
			buf[i*nch+ch] = float32(v)
		}
	}
	return wrap(buf, sampleRate, nch), nil
}

// Equal reports bit-for-bit equality of format and samples.
func (c Clip) Equal(other Clip) bool {
	if c.sampleRate != other.sampleRate || c.channels != other.channels || len(c.samples) != len(other.samples) {
		return false
	}
	for i, v := range c.samples {
		if math.Float32bits(v) != math.Float32bits(other.samples[i]) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for logs.
func (c Clip) String() string {
	return fmt.Sprintf("%d frames @ %d Hz x%d (%s)", c.Frames(), c.sampleRate, c.channels, c.Duration())
}

// FramesToDuration converts a frame count to a duration, rounded to the
// nearest nanosecond.
func FramesToDuration(frames, sampleRate int) time.Duration {
	return time.Duration(math.Round(float64(frames) * float64(time.Second) / float64(sampleRate)))
}

// FramesFor returns the nearest frame count for d at the given rate.
func FramesFor(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}
