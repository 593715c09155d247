package audio

import (
	"encoding/binary"
	"math"
)

// FromInt16 builds a clip from interleaved 16-bit PCM.
func FromInt16(pcm []int16, sampleRate, channels int) (Clip, error) {
	buf := make([]float32, len(pcm))
	for i, v := range pcm {
		buf[i] = float32(v) / int16Scale
	}
	return NewClip(buf, sampleRate, channels)
}

// FromInt builds a clip from integer PCM of the given bit depth.
func FromInt(pcm []int, bitDepth, sampleRate, channels int) (Clip, error) {
	scale := float32(int64(1) << (bitDepth - 1))
	buf := make([]float32, len(pcm))
	for i, v := range pcm {
		buf[i] = float32(v) / scale
	}
	return NewClip(buf, sampleRate, channels)
}

// ToInt16 quantizes the clip to interleaved 16-bit PCM with saturation.
func (c Clip) ToInt16() []int16 {
	out := make([]int16, len(c.samples))
	for i, v := range c.samples {
		out[i] = SaturateInt16(int32(math.Round(float64(v) * int16Scale)))
	}
	return out
}

// ToInt quantizes the clip to integer PCM of the given bit depth.
func (c Clip) ToInt(bitDepth int) []int {
	scale := float64(int64(1) << (bitDepth - 1))
	hi, lo := scale-1, -scale
	out := make([]int, len(c.samples))
	for i, v := range c.samples {
		s := math.Round(float64(v) * scale)
		out[i] = int(math.Max(lo, math.Min(hi, s)))
	}
	return out
}

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples. A
// trailing odd byte is ignored.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Saturate clamps v to [-1, 1].
func Saturate(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// SaturateInt16 clamps v to the valid int16 range.
func SaturateInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
