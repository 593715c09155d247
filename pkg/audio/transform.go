package audio

import (
	"fmt"
	"math"
	"time"
)

// Slice returns frames [from, to). Bounds are clamped to the clip.
func (c Clip) Slice(from, to int) Clip {
	n := c.Frames()
	from = max(0, min(from, n))
	to = max(from, min(to, n))

	buf := make([]float32, (to-from)*c.channels)
	copy(buf, c.samples[from*c.channels:to*c.channels])
	return wrap(buf, c.sampleRate, c.channels)
}

// Append concatenates other after c. Both clips must share a format.
func (c Clip) Append(other Clip) (Clip, error) {
	if c.sampleRate != other.sampleRate || c.channels != other.channels {
		return Clip{}, fmt.Errorf("format mismatch: %d Hz x%d vs %d Hz x%d",
			c.sampleRate, c.channels, other.sampleRate, other.channels)
	}

	buf := make([]float32, len(c.samples)+len(other.samples))
	copy(buf, c.samples)
	copy(buf[len(c.samples):], other.samples)
	return wrap(buf, c.sampleRate, c.channels), nil
}

// Gain scales every sample by db decibels. The result is not clamped; mixing
// stages limit after summing.
func (c Clip) Gain(db float64) Clip {
	g := float32(DBToGain(db))
	buf := make([]float32, len(c.samples))
	for i, v := range c.samples {
		buf[i] = v * g
	}
	return wrap(buf, c.sampleRate, c.channels)
}

// Clamp returns a copy with every sample saturated to [-1, 1].
func (c Clip) Clamp() Clip {
	buf := make([]float32, len(c.samples))
	for i, v := range c.samples {
		buf[i] = Saturate(v)
	}
	return wrap(buf, c.sampleRate, c.channels)
}

// FadeOut applies a linear fade over the last d of the clip. A fade longer
// than the clip covers the whole clip. Duration is unchanged.
func (c Clip) FadeOut(d time.Duration) Clip {
	out := c.Slice(0, c.Frames())
	n := out.Frames()
	fade := min(FramesFor(d, c.sampleRate), n)
	if fade <= 0 {
		return out
	}

	start := n - fade
	for i := start; i < n; i++ {
		// Reaches exactly zero on the final frame.
		g := float32(n-1-i) / float32(max(fade-1, 1))
		for ch := range c.channels {
			out.samples[i*c.channels+ch] *= g
		}
	}
	return out
}

// PadTo extends the clip with trailing silence up to frames. Clips that are
// already long enough are returned as a copy.
func (c Clip) PadTo(frames int) Clip {
	if frames <= c.Frames() {
		return c.Slice(0, c.Frames())
	}
	buf := make([]float32, frames*c.channels)
	copy(buf, c.samples)
	return wrap(buf, c.sampleRate, c.channels)
}

// LoopTo repeats the clip until it is exactly frames long.
func (c Clip) LoopTo(frames int) Clip {
	n := c.Frames()
	if n == 0 {
		return Silence(frames, c.sampleRate, c.channels)
	}

	buf := make([]float32, frames*c.channels)
	for off := 0; off < len(buf); off += len(c.samples) {
		copy(buf[off:], c.samples)
	}
	return wrap(buf, c.sampleRate, c.channels)
}

// WithChannels converts between channel layouts. Mono is duplicated to every
// output channel; multichannel to mono is averaged. Other conversions map
// channels modulo the source count.
func (c Clip) WithChannels(n int) Clip {
	if n == c.channels {
		return c.Slice(0, c.Frames())
	}
	switch {
	case c.channels == 2 && n == 1:
		return wrap(stereoToMono(c.samples), c.sampleRate, 1)
	case c.channels == 1 && n == 2:
		return wrap(monoToStereo(c.samples), c.sampleRate, 2)
	case n == 1:
		return wrap(downmix(c.samples, c.channels), c.sampleRate, 1)
	}

	frames := c.Frames()
	buf := make([]float32, frames*n)
	for i := range frames {
		for ch := range n {
			buf[i*n+ch] = c.samples[i*c.channels+ch%c.channels]
		}
	}
	return wrap(buf, c.sampleRate, n)
}

// Resample changes the sample rate with linear interpolation. The result has
// round(frames * rate / sampleRate) frames.
func (c Clip) Resample(rate int) Clip {
	if rate == c.sampleRate || c.Frames() == 0 {
		out := c.Slice(0, c.Frames())
		out.sampleRate = rate
		return out
	}
	outFrames := int(math.Round(float64(c.Frames()) * float64(rate) / float64(c.sampleRate)))
	return wrap(interpolate(c.samples, c.channels, outFrames), rate, c.channels)
}

// Conform converts the clip to the requested working format.
func (c Clip) Conform(rate, channels int) Clip {
	out := c
	if out.channels != channels {
		out = out.WithChannels(channels)
	}
	if out.sampleRate != rate {
		out = out.Resample(rate)
	}
	return out
}

// Stretch resamples the time axis so the clip has exactly outFrames frames
// at the same sample rate. Tempo and pitch change together.
func (c Clip) Stretch(outFrames int) Clip {
	if outFrames == c.Frames() {
		return c.Slice(0, c.Frames())
	}
	return wrap(interpolate(c.samples, c.channels, outFrames), c.sampleRate, c.channels)
}

// interpolate maps outFrames frames linearly onto the source frames.
func interpolate(samples []float32, channels, outFrames int) []float32 {
	inFrames := len(samples) / channels
	buf := make([]float32, outFrames*channels)
	if inFrames == 0 || outFrames == 0 {
		return buf
	}

	step := float64(inFrames) / float64(outFrames)
	for i := range outFrames {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		next := min(j+1, inFrames-1)
		for ch := range channels {
			a := samples[j*channels+ch]
			b := samples[next*channels+ch]
			buf[i*channels+ch] = a + (b-a)*frac
		}
	}
	return buf
}
