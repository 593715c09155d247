// Package mix blends narration with a background music bed at fixed
// relative loudness.
package mix

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Knee is the full-scale level above which the limiter starts to bend.
const Knee = 0.9

// Params are the mixer levels in dBFS.
type Params struct {
	NarrationLevelDB float64
	MusicLevelDB     float64
	// Loop repeats a short music bed; otherwise it is padded with silence.
	Loop bool
}

// DefaultParams keeps music 12 dB under narration.
var DefaultParams = Params{NarrationLevelDB: -12, MusicLevelDB: -24, Loop: true}

// Validate requires finite levels with music strictly below narration.
func (p Params) Validate() error {
	for _, v := range []float64{p.NarrationLevelDB, p.MusicLevelDB} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.InvalidParameter("mix levels must be finite").WithStage("mix")
		}
	}
	if p.MusicLevelDB >= p.NarrationLevelDB {
		return apperrors.InvalidParameter("music level %v dB must be below narration level %v dB",
			p.MusicLevelDB, p.NarrationLevelDB).WithStage("mix")
	}
	return nil
}

// Stats describes what the mixer did.
type Stats struct {
	NarrationGainDB float64
	MusicGainDB     float64
	// MusicLoops is music frames used divided by the music clip length.
	MusicLoops     float64
	LimitedSamples int
	Peak           float64
}

// Mix returns narration plus music, both gain-adjusted to their levels and
// summed through the soft-knee limiter. The result always has the
// narration's frame count and format. Mix is deterministic.
func Mix(narration, music audio.Clip, p Params) (audio.Clip, Stats, error) {
	var stats Stats
	if err := p.Validate(); err != nil {
		return audio.Clip{}, stats, err
	}

	n := narration.Frames()
	bed := fitMusic(music, narration, p.Loop, &stats)

	narr, ng := levelTo(narration, p.NarrationLevelDB)
	bed, mg := levelTo(bed, p.MusicLevelDB)
	stats.NarrationGainDB, stats.MusicGainDB = ng, mg

	a, b := narr.Samples(), bed.Samples()
	out := make([]float32, n*narration.Channels())
	for i := range out {
		s := float64(a[i]) + float64(b[i])
		if math.Abs(s) > Knee {
			stats.LimitedSamples++
		}
		out[i] = audio.Saturate(float32(limit(s)))
	}

	mixed, err := audio.NewClip(out, narration.SampleRate(), narration.Channels())
	if err != nil {
		return audio.Clip{}, stats, err
	}
	stats.Peak = mixed.Peak()
	return mixed, stats, nil
}

// fitMusic conforms music to the narration format and length.
func fitMusic(music, narration audio.Clip, loop bool, stats *Stats) audio.Clip {
	n := narration.Frames()
	if music.IsZero() || music.Empty() {
		return audio.Silence(n, narration.SampleRate(), narration.Channels())
	}

	bed := music.Conform(narration.SampleRate(), narration.Channels())
	stats.MusicLoops = float64(n) / float64(bed.Frames())

	switch {
	case bed.Frames() >= n:
		return bed.Slice(0, n)
	case loop:
		return bed.LoopTo(n)
	default:
		return bed.PadTo(n)
	}
}

// levelTo applies the gain that brings clip's RMS to targetDB. Silent clips
// are returned unchanged with zero gain.
func levelTo(clip audio.Clip, targetDB float64) (audio.Clip, float64) {
	current := clip.DBFS()
	if math.IsInf(current, -1) {
		return clip, 0
	}
	gain := targetDB - current
	return clip.Gain(gain), gain
}

// limit is identity below the knee and bends into the remaining headroom
// with tanh above it, so the output never exceeds full scale.
func limit(s float64) float64 {
	a := math.Abs(s)
	if a <= Knee {
		return s
	}
	head := 1 - Knee
	return math.Copysign(Knee+head*math.Tanh((a-Knee)/head), s)
}

// FadeOut fades the tail of the mix over min(maxFade, 10% of its duration).
// A zero maxFade disables it. Duration is unchanged.
func FadeOut(clip audio.Clip, maxFade time.Duration) audio.Clip {
	if maxFade <= 0 {
		return clip
	}
	return clip.FadeOut(min(maxFade, clip.Duration()/10))
}

// Mixer is the logging front of Mix configured from the pipeline options.
type Mixer struct {
	params  Params
	fadeOut time.Duration
	logger  *zap.Logger
}

// NewMixer creates a Mixer from configuration.
func NewMixer(cfg *config.Config, logger *zap.Logger) *Mixer {
	return &Mixer{
		params: Params{
			NarrationLevelDB: cfg.Pipeline.NarrationLevelDB,
			MusicLevelDB:     cfg.Pipeline.MusicLevelDB,
			Loop:             cfg.Pipeline.MusicLoop,
		},
		fadeOut: cfg.Pipeline.FadeOut(),
		logger:  logger,
	}
}

// Params returns the configured levels.
func (m *Mixer) Params() Params { return m.params }

// Mix blends narration and music with the configured levels.
func (m *Mixer) Mix(narration, music audio.Clip) (audio.Clip, Stats, error) {
	mixed, stats, err := Mix(narration, music, m.params)
	if err != nil {
		return audio.Clip{}, stats, err
	}

	m.logger.Debug("Mixed narration with music",
		zap.Float64("narration_gain_db", stats.NarrationGainDB),
		zap.Float64("music_gain_db", stats.MusicGainDB),
		zap.Float64("music_loops", stats.MusicLoops),
		zap.Int("limited_samples", stats.LimitedSamples),
		zap.Float64("peak", stats.Peak),
		zap.Duration("duration", mixed.Duration()))

	return mixed, stats, nil
}

// FadeOut applies the configured tail fade.
func (m *Mixer) FadeOut(clip audio.Clip) audio.Clip {
	return FadeOut(clip, m.fadeOut)
}
