// Package pipeline sequences the stages that turn a narration and a music bed
// into a final track of exact duration.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/enhance"
	"github.com/Raikerian/narrmix/internal/mix"
	"github.com/Raikerian/narrmix/internal/quality"
	"github.com/Raikerian/narrmix/internal/reconcile"
	"github.com/Raikerian/narrmix/internal/stretch"
	"github.com/Raikerian/narrmix/pkg/audio"
)

const (
	minExpectedLength = time.Second
	maxExpectedLength = 5 * time.Minute
)

// Stretcher changes narration tempo.
type Stretcher interface {
	Stretch(clip audio.Clip, req stretch.Request) (audio.Clip, stretch.Outcome, error)
}

// Mixer blends narration with music and fades the result.
type Mixer interface {
	Mix(narration, music audio.Clip) (audio.Clip, mix.Stats, error)
	FadeOut(clip audio.Clip) audio.Clip
}

// Enhancer post-processes the mixed track.
type Enhancer interface {
	Apply(clip audio.Clip) (audio.Clip, error)
}

// Options are the per-unit switches derived from configuration.
type Options struct {
	SpeedAdjustment bool
	Speed           float64
	PreservePitch   bool
	Bounds          quality.Bounds
	Enhance         bool
	Tolerance       reconcile.Tolerance
}

// OptionsFrom derives Options from the pipeline configuration.
func OptionsFrom(p config.PipelineConfig) Options {
	low, high := p.Bounds()
	tol, fatal := p.Tolerance()
	return Options{
		SpeedAdjustment: p.SpeedAdjustmentEnabled,
		Speed:           p.SpeedFactor,
		PreservePitch:   p.PreservePitch,
		Bounds:          quality.Bounds{Low: low, High: high},
		Enhance:         p.EnhancementEnabled,
		Tolerance:       reconcile.Tolerance{Max: tol, Fatal: fatal},
	}
}

// Orchestrator runs the stage sequence for one unit at a time. It holds no
// per-unit state, so one Orchestrator serves every worker.
type Orchestrator struct {
	opts      Options
	stretcher Stretcher
	mixer     Mixer
	enhancer  Enhancer
	logger    *zap.Logger
}

// NewOrchestratorParams holds dependencies for NewOrchestrator.
type NewOrchestratorParams struct {
	fx.In
	Cfg      *config.Config
	Engine   *stretch.Engine
	Mixer    *mix.Mixer
	Enhancer *enhance.Enhancer
	Logger   *zap.Logger
}

// NewOrchestrator creates the orchestrator from configuration.
func NewOrchestrator(params NewOrchestratorParams) *Orchestrator {
	return NewOrchestratorWith(OptionsFrom(params.Cfg.Pipeline), params.Engine, params.Mixer, params.Enhancer, params.Logger)
}

// NewOrchestratorWith builds an orchestrator from explicit stages.
func NewOrchestratorWith(opts Options, s Stretcher, m Mixer, e Enhancer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		opts:      opts,
		stretcher: s,
		mixer:     m,
		enhancer:  e,
		logger:    logger,
	}
}

// Options returns the options the orchestrator runs with.
func (o *Orchestrator) Options() Options { return o.opts }

// ExpectedDuration is the narration length after the speed factor.
func (o *Orchestrator) ExpectedDuration(narration audio.Clip) time.Duration {
	if !o.opts.SpeedAdjustment || o.opts.Speed == 1.0 {
		return narration.Duration()
	}
	return audio.FramesToDuration(stretch.OutputFrames(narration.Frames(), o.opts.Speed), narration.SampleRate())
}

// Process runs one unit through every stage. ctx is checked once before
// the unit starts; stages themselves are not interruptible. On a fatal error
// the returned result ends in Failed and the error carries its code.
func (o *Orchestrator) Process(ctx context.Context, unit Unit) (*Result, error) {
	res := &Result{UnitID: unit.ID, Strategy: stretch.NameNone}
	logger := o.logger.With(zap.String("unit_id", unit.ID))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.enter(Received)

	if err := o.validate(unit); err != nil {
		return o.fail(res, logger, err)
	}
	o.sanityCheck(unit.Narration, logger)

	// Stretched
	narration := unit.Narration
	if o.opts.SpeedAdjustment {
		out, outcome, err := o.stretcher.Stretch(narration, stretch.Request{
			Factor:        o.opts.Speed,
			PreservePitch: o.opts.PreservePitch,
			Bounds:        o.opts.Bounds,
		})
		if err != nil {
			return o.fail(res, logger, err)
		}
		if outcome.Fallback != nil {
			res.warn(warningFrom("stretch", outcome.Fallback))
			logger.Warn("Pitch-preserving stretch not used", zap.Error(outcome.Fallback))
		}
		res.Strategy = outcome.Strategy
		narration = out
		res.enter(Stretched)

		logger.Debug("Stretched narration",
			zap.String("strategy", outcome.Strategy),
			zap.Float64("factor", o.opts.Speed),
			zap.Duration("from", unit.Narration.Duration()),
			zap.Duration("to", narration.Duration()))
	}

	// Verified
	res.Quality = quality.Verify(unit.Narration, narration, o.opts.Bounds)
	if !res.Quality.Passed() {
		res.warn(warningFrom("verify", res.Quality.Err()))
		logger.Warn("Quality check degraded", zap.Float64("ratio", res.Quality.Ratio))
	}
	res.enter(Verified)

	// Mixed
	mixed, stats, err := o.mixer.Mix(narration, unit.Music)
	if err != nil {
		return o.fail(res, logger, err)
	}
	res.MixStats = stats

	mixed, outcome, err := reconcile.Reconcile(mixed, narration.Duration(), o.opts.Tolerance)
	if err != nil {
		return o.fail(res, logger, err)
	}
	if outcome.Action != reconcile.Unchanged {
		logger.Debug("Mixed track reconciled to narration",
			zap.String("action", string(outcome.Action)),
			zap.Duration("difference", outcome.Before))
	}
	mixed = o.mixer.FadeOut(mixed)
	res.enter(Mixed)

	// Enhanced
	if o.opts.Enhance {
		enhanced, err := o.enhancer.Apply(mixed)
		switch {
		case err == nil:
			mixed = enhanced
			res.enter(Enhanced)
		case apperrors.CodeOf(err).Recoverable():
			res.warn(warningFrom("enhance", err))
			logger.Warn("Enhancement failed, keeping unenhanced mix", zap.Error(err))
		default:
			return o.fail(res, logger, err)
		}
	}

	// Reconciled
	target := unit.Target
	if target == 0 {
		target = o.ExpectedDuration(unit.Narration)
	}
	final, outcome, err := reconcile.Reconcile(mixed, target, o.opts.Tolerance)
	res.TargetDuration = target
	if err != nil {
		return o.fail(res, logger, err)
	}
	res.enter(Reconciled)

	res.Clip = final
	res.FinalDuration = final.Duration()
	res.Difference = res.FinalDuration - target
	res.enter(Done)

	logger.Info("Unit processed",
		zap.String("strategy", res.Strategy),
		zap.String("verdict", string(res.Quality.Verdict)),
		zap.Duration("final", res.FinalDuration),
		zap.Duration("target", target),
		zap.Duration("difference", res.Difference),
		zap.String("reconcile", string(outcome.Action)),
		zap.Int("warnings", len(res.Warnings)))

	return res, nil
}

func (o *Orchestrator) validate(unit Unit) error {
	if unit.Narration.IsZero() || unit.Narration.Empty() {
		return apperrors.InvalidParameter("narration is empty").WithStage("receive")
	}
	if unit.Target < 0 {
		return apperrors.InvalidParameter("negative target duration %s", unit.Target).WithStage("receive")
	}
	return nil
}

// sanityCheck logs narration lengths outside the usual range. It never fails.
func (o *Orchestrator) sanityCheck(narration audio.Clip, logger *zap.Logger) {
	d := narration.Duration()
	switch {
	case d < minExpectedLength:
		logger.Warn("Narration is unusually short", zap.Duration("duration", d))
	case d > maxExpectedLength:
		logger.Warn("Narration is unusually long", zap.Duration("duration", d))
	}
}

func (o *Orchestrator) fail(res *Result, logger *zap.Logger, err error) (*Result, error) {
	from := res.State()
	res.enter(Failed)
	logger.Error("Unit failed", zap.String("state", string(from)), zap.Error(err))
	return res, fmt.Errorf("unit %s failed after %s: %w", res.UnitID, from, err)
}
