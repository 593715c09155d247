// Package stretch changes narration tempo. The pitch-preserving phase
// vocoder is preferred; a linear time-axis resample is the fallback.
package stretch

import (
	"math"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Strategy names reported in outcomes and run history.
const (
	NamePhaseVocoder  = "phase_vocoder"
	NameNaiveResample = "naive_resample"
	NameNone          = "none"
)

// Strategy is one way of changing a clip's tempo by factor. Factor > 1 speeds
// up. Every strategy returns exactly OutputFrames(frames, factor) frames.
type Strategy interface {
	Name() string
	Available() bool
	Stretch(clip audio.Clip, factor float64) (audio.Clip, error)
}

// OutputFrames is the frame count a stretch by factor must produce.
func OutputFrames(frames int, factor float64) int {
	return int(math.Round(float64(frames) / factor))
}

func validateFactor(factor float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return apperrors.InvalidParameter("speed factor must be a positive finite number, got %v", factor).WithStage("stretch")
	}
	return nil
}

// NaiveResample resamples the time axis linearly, so tempo and pitch move
// together. It is always available.
type NaiveResample struct{}

// Name implements Strategy.
func (NaiveResample) Name() string { return NameNaiveResample }

// Available implements Strategy.
func (NaiveResample) Available() bool { return true }

// Stretch implements Strategy.
func (NaiveResample) Stretch(clip audio.Clip, factor float64) (audio.Clip, error) {
	if err := validateFactor(factor); err != nil {
		return audio.Clip{}, err
	}
	return clip.Stretch(OutputFrames(clip.Frames(), factor)), nil
}
