package stretch

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/pkg/audio"
)

const (
	// WindowSize is the STFT frame length in samples.
	WindowSize = 2048
	// SynthesisHop is the output hop; the analysis hop is SynthesisHop*factor.
	SynthesisHop = 512

	probeTolerance = 1e-9
)

// PhaseVocoder changes tempo while keeping pitch, using an STFT phase
// vocoder per channel.
type PhaseVocoder struct {
	window    []float64
	available bool
}

// NewPhaseVocoder builds the vocoder and probes the FFT backend once.
func NewPhaseVocoder() *PhaseVocoder {
	return &PhaseVocoder{
		window:    hann(WindowSize),
		available: probeFFT(WindowSize),
	}
}

// Name implements Strategy.
func (p *PhaseVocoder) Name() string { return NamePhaseVocoder }

// Available implements Strategy.
func (p *PhaseVocoder) Available() bool { return p.available }

// Stretch implements Strategy.
func (p *PhaseVocoder) Stretch(clip audio.Clip, factor float64) (audio.Clip, error) {
	if !p.available {
		return audio.Clip{}, apperrors.CapabilityUnavailable("fft backend failed its probe").WithStage("stretch")
	}
	if err := validateFactor(factor); err != nil {
		return audio.Clip{}, err
	}
	if clip.Frames() < WindowSize {
		return audio.Clip{}, apperrors.CapabilityUnavailable(
			"clip has %d frames, phase vocoder needs at least %d", clip.Frames(), WindowSize).WithStage("stretch")
	}

	outFrames := OutputFrames(clip.Frames(), factor)
	chans := make([][]float64, clip.Channels())
	for ch := range chans {
		chans[ch] = p.stretchChannel(clip.Channel(ch), factor, outFrames)
	}

	out, err := audio.FromChannels(chans, clip.SampleRate())
	if err != nil {
		return audio.Clip{}, err
	}
	if !out.Finite() {
		return audio.Clip{}, apperrors.CapabilityUnavailable("phase vocoder produced non-finite samples").WithStage("stretch")
	}
	return out, nil
}

// stretchChannel runs analysis, phase propagation and overlap-add for one
// channel. Frames are centred by reading the input with N/2 samples of
// leading silence. Only spectral peaks are propagated; every other bin keeps
// its analysis phase offset from the peak whose region it falls in, so the
// bins of one partial stay coherent at large hops.
func (p *PhaseVocoder) stretchChannel(x []float64, factor float64, outFrames int) []float64 {
	const n = WindowSize
	const half = n / 2
	bins := half + 1

	analysisHop := float64(SynthesisHop) * factor
	frames := (outFrames+half)/SynthesisHop + 2

	y := make([]float64, frames*SynthesisHop+n)
	norm := make([]float64, len(y))

	mag := make([]float64, bins)
	phase := make([]float64, bins)
	prevPhase := make([]float64, bins)
	synthPhase := make([]float64, bins)
	var peaks []int
	omega := make([]float64, bins)
	for b := range omega {
		omega[b] = 2 * math.Pi * float64(b) / n
	}

	frame := make([]float64, n)
	spec := make([]complex128, n)
	prevStart := 0

	for k := range frames {
		start := int(math.Round(float64(k) * analysisHop))
		for i := range n {
			// Padded index start+i maps to input index start+i-half.
			j := start + i - half
			if j >= 0 && j < len(x) {
				frame[i] = x[j] * p.window[i]
			} else {
				frame[i] = 0
			}
		}

		in := fft.FFTReal(frame)
		hop := float64(start - prevStart)
		for b := range bins {
			mag[b] = cmplx.Abs(in[b])
			phase[b] = cmplx.Phase(in[b])
		}

		if k == 0 || hop == 0 {
			copy(synthPhase, phase)
		} else {
			peaks = findPeaks(mag, peaks[:0])
			for _, b := range peaks {
				delta := wrapPhase(phase[b] - prevPhase[b] - omega[b]*hop)
				inst := omega[b] + delta/hop
				synthPhase[b] = wrapPhase(synthPhase[b] + inst*SynthesisHop)
			}
			lockToPeaks(synthPhase, phase, mag, peaks)
		}
		copy(prevPhase, phase)
		for b := range bins {
			spec[b] = cmplx.Rect(mag[b], synthPhase[b])
		}
		// Keep the spectrum Hermitian so the inverse is real.
		for b := 1; b < half; b++ {
			spec[n-b] = cmplx.Conj(spec[b])
		}
		prevStart = start

		out := fft.IFFT(spec)
		off := k * SynthesisHop
		for i := range n {
			w := p.window[i]
			y[off+i] += real(out[i]) * w
			norm[off+i] += w * w
		}
	}

	result := make([]float64, outFrames)
	for i := range result {
		j := i + half
		if norm[j] > 1e-6 {
			result[i] = y[j] / norm[j]
		}
	}
	return result
}

// findPeaks appends the indices of local magnitude maxima to dst.
func findPeaks(mag []float64, dst []int) []int {
	last := len(mag) - 1
	for b, m := range mag {
		if m == 0 {
			continue
		}
		if b > 0 && m <= mag[b-1] {
			continue
		}
		if b < last && m < mag[b+1] {
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// lockToPeaks sets the synthesis phase of each non-peak bin relative to its
// peak. A peak's region ends at the lowest magnitude between it and the next
// peak. Without peaks the frame is silent and phases are left alone.
func lockToPeaks(synth, phase, mag []float64, peaks []int) {
	lo := 0
	for i, p := range peaks {
		hi := len(synth) - 1
		if i+1 < len(peaks) {
			hi = p
			for b := p + 1; b < peaks[i+1]; b++ {
				if mag[b] < mag[hi] {
					hi = b
				}
			}
		}
		for b := lo; b <= hi; b++ {
			if b != p {
				synth[b] = wrapPhase(synth[p] + phase[b] - phase[p])
			}
		}
		lo = hi + 1
	}
}

// hann returns a periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func wrapPhase(p float64) float64 {
	return p - 2*math.Pi*math.Round(p/(2*math.Pi))
}

// probeFFT checks that an impulse survives a forward and inverse transform.
func probeFFT(n int) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	x := make([]float64, n)
	x[1] = 1
	back := fft.IFFT(fft.FFTReal(x))
	if len(back) != n {
		return false
	}
	for i, v := range back {
		if math.Abs(real(v)-x[i]) > probeTolerance || math.Abs(imag(v)) > probeTolerance {
			return false
		}
	}
	return true
}
