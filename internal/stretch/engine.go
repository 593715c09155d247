package stretch

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/quality"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Request describes one speed adjustment.
type Request struct {
	Factor        float64
	PreservePitch bool
	// Bounds is the loudness window the stretched clip is verified against.
	Bounds quality.Bounds
}

// Outcome records which strategy ran and why.
type Outcome struct {
	Strategy string
	// Fallback is a CapabilityUnavailable error when the pitch-preserving
	// strategy was wanted but could not be used.
	Fallback error
}

// Capability describes one strategy for diagnostics.
type Capability struct {
	Name      string
	Available bool
}

// Engine selects a strategy per request.
type Engine struct {
	primary  Strategy
	fallback Strategy
	preFade  time.Duration
	logger   *zap.Logger
}

// NewEngineParams holds dependencies for NewEngine.
type NewEngineParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
}

// NewEngine creates the stretch engine from configuration. When high quality
// stretching is disabled only the fallback is wired.
func NewEngine(params NewEngineParams) *Engine {
	var primary Strategy
	if params.Cfg.Pipeline.HighQualityStretch {
		primary = NewPhaseVocoder()
	}
	e := NewEngineWith(primary, NaiveResample{}, params.Cfg.Pipeline.PreFade(), params.Logger)

	if primary != nil && !primary.Available() {
		params.Logger.Warn("Pitch-preserving stretch unavailable, naive resample will be used",
			zap.String("strategy", primary.Name()))
	}
	return e
}

// NewEngineWith builds an engine from explicit strategies. primary may be nil.
func NewEngineWith(primary, fallback Strategy, preFade time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		primary:  primary,
		fallback: fallback,
		preFade:  preFade,
		logger:   logger,
	}
}

// Capabilities lists the wired strategies in preference order.
func (e *Engine) Capabilities() []Capability {
	var caps []Capability
	for _, s := range []Strategy{e.primary, e.fallback} {
		if s != nil {
			caps = append(caps, Capability{Name: s.Name(), Available: s.Available()})
		}
	}
	return caps
}

// Stretch changes clip tempo by req.Factor. A factor of exactly 1 returns the
// source clip untouched without running any strategy.
func (e *Engine) Stretch(clip audio.Clip, req Request) (audio.Clip, Outcome, error) {
	if err := validateFactor(req.Factor); err != nil {
		return audio.Clip{}, Outcome{}, err
	}
	if err := req.Bounds.Validate(); err != nil {
		return audio.Clip{}, Outcome{}, err
	}
	if req.Factor == 1.0 {
		return clip, Outcome{Strategy: NameNone}, nil
	}

	src := PreFade(clip, e.preFade)
	var outcome Outcome

	if req.PreservePitch {
		switch {
		case e.primary == nil:
			outcome.Fallback = apperrors.CapabilityUnavailable("pitch-preserving stretch is disabled").WithStage("stretch")
		case !e.primary.Available():
			outcome.Fallback = apperrors.CapabilityUnavailable("%s is not available", e.primary.Name()).WithStage("stretch")
		default:
			out, err := e.primary.Stretch(src, req.Factor)
			if err == nil {
				outcome.Strategy = e.primary.Name()
				return out, outcome, nil
			}
			e.logger.Warn("Primary stretch failed, falling back",
				zap.String("strategy", e.primary.Name()),
				zap.Float64("factor", req.Factor),
				zap.Error(err))
			outcome.Fallback = apperrors.CapabilityUnavailable("%s failed", e.primary.Name()).Wrap(err).WithStage("stretch")
		}
	}

	out, err := e.fallback.Stretch(src, req.Factor)
	if err != nil {
		return audio.Clip{}, outcome, err
	}
	outcome.Strategy = e.fallback.Name()
	return out, outcome, nil
}

// PreFade fades the tail of clip over min(maxFade, 5% of its duration)
// before stretching. A zero maxFade disables it.
func PreFade(clip audio.Clip, maxFade time.Duration) audio.Clip {
	if maxFade <= 0 {
		return clip
	}
	return clip.FadeOut(min(maxFade, clip.Duration()/20))
}
