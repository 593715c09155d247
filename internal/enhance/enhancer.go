// Package enhance applies final dynamics processing to a mixed track:
// compression, peak normalization and an optional export codec check.
package enhance

import (
	"math"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/quality"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// RoundTripper previews export loss by encoding and decoding a clip.
type RoundTripper interface {
	RoundTrip(clip audio.Clip) (audio.Clip, error)
}

// Compressor is a feed-forward, stereo-linked RMS compressor.
type Compressor struct {
	ThresholdDB float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// DefaultCompressor is -18 dBFS, 2:1, 5 ms attack, 100 ms release.
var DefaultCompressor = Compressor{
	ThresholdDB: -18,
	Ratio:       2,
	Attack:      5 * time.Millisecond,
	Release:     100 * time.Millisecond,
}

// Apply compresses clip. Every channel gets the same gain, derived from the
// mean power across channels.
func (c Compressor) Apply(clip audio.Clip) (audio.Clip, error) {
	frames, channels := clip.Frames(), clip.Channels()
	if frames == 0 {
		return clip, nil
	}

	rate := float64(clip.SampleRate())
	attack := math.Exp(-1 / (c.Attack.Seconds() * rate))
	release := math.Exp(-1 / (c.Release.Seconds() * rate))
	slope := 1 - 1/c.Ratio

	in := clip.Samples()
	out := make([]float32, len(in))
	var env float64
	for i := range frames {
		var power float64
		for ch := range channels {
			v := float64(in[i*channels+ch])
			power += v * v
		}
		power /= float64(channels)

		coeff := release
		if power > env {
			coeff = attack
		}
		env = coeff*env + (1-coeff)*power

		gain := 1.0
		if env > 0 {
			level := 10 * math.Log10(env)
			if level > c.ThresholdDB {
				gain = audio.DBToGain((c.ThresholdDB - level) * slope)
			}
		}
		for ch := range channels {
			j := i*channels + ch
			out[j] = float32(float64(in[j]) * gain)
		}
	}

	return audio.NewClip(out, clip.SampleRate(), channels)
}

// Normalize scales clip so its peak sits at targetDB. Silence is returned
// unchanged.
func Normalize(clip audio.Clip, targetDB float64) audio.Clip {
	peak := clip.Peak()
	if peak == 0 {
		return clip
	}
	return clip.Gain(targetDB - audio.GainToDB(peak))
}

// Enhancer runs compression, normalization and the optional codec check.
type Enhancer struct {
	compressor   Compressor
	targetPeakDB float64
	check        RoundTripper
	bounds       quality.Bounds
	logger       *zap.Logger
}

// NewEnhancerParams holds dependencies for NewEnhancer.
type NewEnhancerParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
}

// NewEnhancer creates the enhancer from configuration.
func NewEnhancer(params NewEnhancerParams) *Enhancer {
	e := params.Cfg.Pipeline.Enhancement
	low, high := params.Cfg.Pipeline.Bounds()

	var check RoundTripper
	if e.CodecCheck == "opus" {
		check = codec.NewOpus(e.OpusBitrate)
	}

	return NewEnhancerWith(Compressor{
		ThresholdDB: e.ThresholdDB,
		Ratio:       e.Ratio,
		Attack:      time.Duration(e.AttackMS * float64(time.Millisecond)),
		Release:     time.Duration(e.ReleaseMS * float64(time.Millisecond)),
	}, e.TargetPeakDB, check, quality.Bounds{Low: low, High: high}, params.Logger)
}

// NewEnhancerWith builds an enhancer from explicit parts. check may be nil.
func NewEnhancerWith(c Compressor, targetPeakDB float64, check RoundTripper, bounds quality.Bounds, logger *zap.Logger) *Enhancer {
	return &Enhancer{
		compressor:   c,
		targetPeakDB: targetPeakDB,
		check:        check,
		bounds:       bounds,
		logger:       logger,
	}
}

// Apply returns the enhanced clip. Any failure is an EnhancementFailure and
// the caller is expected to keep the input.
func (e *Enhancer) Apply(clip audio.Clip) (audio.Clip, error) {
	if !clip.Finite() {
		return audio.Clip{}, fail(nil, "input contains non-finite samples")
	}

	compressed, err := e.compressor.Apply(clip)
	if err != nil {
		return audio.Clip{}, fail(err, "compress")
	}
	out := Normalize(compressed, e.targetPeakDB)
	if !out.Finite() {
		return audio.Clip{}, fail(nil, "enhanced clip contains non-finite samples")
	}
	if out.Frames() != clip.Frames() {
		return audio.Clip{}, fail(nil, "enhancement changed length from %d to %d frames", clip.Frames(), out.Frames())
	}

	if e.check != nil {
		decoded, err := e.check.RoundTrip(out)
		if err != nil {
			return audio.Clip{}, fail(err, "codec round trip failed")
		}
		report := quality.Verify(out, decoded, e.bounds)
		if !report.Passed() {
			return audio.Clip{}, fail(report.Err(), "codec round trip degraded the track")
		}
		e.logger.Debug("Codec round trip passed", zap.Float64("ratio", report.Ratio))
	}

	e.logger.Debug("Enhanced mix",
		zap.Float64("input_dbfs", clip.DBFS()),
		zap.Float64("output_dbfs", out.DBFS()),
		zap.Float64("output_peak", out.Peak()))

	return out, nil
}

func fail(err error, format string, args ...any) error {
	return apperrors.EnhancementFailure(format, args...).Wrap(err).WithStage("enhance")
}
