package audio

import "math"

// RMS returns the root-mean-square amplitude computed per channel over the
// full buffer and averaged across channels.
func (c Clip) RMS() float64 {
	n := c.Frames()
	if n == 0 {
		return 0
	}

	var total float64
	for ch := range c.channels {
		var sum float64
		for i := range n {
			v := float64(c.samples[i*c.channels+ch])
			sum += v * v
		}
		total += math.Sqrt(sum / float64(n))
	}
	return total / float64(c.channels)
}

// Peak returns the largest absolute sample value.
func (c Clip) Peak() float64 {
	var peak float64
	for _, v := range c.samples {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	return peak
}

// DBFS returns the RMS level relative to full scale. Silence is -Inf.
func (c Clip) DBFS() float64 {
	return GainToDB(c.RMS())
}

// Finite reports whether every sample is a finite number.
func (c Clip) Finite() bool {
	for _, v := range c.samples {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainToDB converts a linear amplitude to decibels. Zero maps to -Inf.
func GainToDB(g float64) float64 {
	if g <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(g)
}
