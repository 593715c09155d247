package pipeline_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/enhance"
	"github.com/Raikerian/narrmix/internal/mix"
	"github.com/Raikerian/narrmix/internal/pipeline"
	"github.com/Raikerian/narrmix/internal/quality"
	"github.com/Raikerian/narrmix/internal/stretch"
	"github.com/Raikerian/narrmix/pkg/audio"
)

func sine(t testing.TB, freq, amp float64, rate, channels int, d time.Duration) audio.Clip {
	t.Helper()
	frames := audio.FramesFor(d, rate)
	buf := make([]float32, frames*channels)
	for i := range frames {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for ch := range channels {
			buf[i*channels+ch] = v
		}
	}
	clip, err := audio.NewClip(buf, rate, channels)
	require.NoError(t, err)
	return clip
}

func newOrchestrator(t *testing.T, mutate func(*config.Config)) *pipeline.Orchestrator {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := zaptest.NewLogger(t)
	return pipeline.NewOrchestrator(pipeline.NewOrchestratorParams{
		Cfg:      cfg,
		Engine:   stretch.NewEngine(stretch.NewEngineParams{Cfg: cfg, Logger: logger}),
		Mixer:    mix.NewMixer(cfg, logger),
		Enhancer: enhance.NewEnhancer(enhance.NewEnhancerParams{Cfg: cfg, Logger: logger}),
		Logger:   logger,
	})
}

type fakeEnhancer struct{ err error }

func (f fakeEnhancer) Apply(clip audio.Clip) (audio.Clip, error) {
	if f.err != nil {
		return audio.Clip{}, f.err
	}
	return clip.Gain(-3), nil
}

type quietStretcher struct{}

func (quietStretcher) Stretch(clip audio.Clip, req stretch.Request) (audio.Clip, stretch.Outcome, error) {
	out, err := stretch.NaiveResample{}.Stretch(clip, req.Factor)
	return out.Gain(-6.0206), stretch.Outcome{Strategy: "quiet"}, err
}

func TestProcess_LoopsShortMusic(t *testing.T) {
	o := newOrchestrator(t, nil)
	unit := pipeline.Unit{
		ID:        "story-1",
		Narration: sine(t, 220, 0.4, 44100, 2, 10*time.Second),
		Music:     sine(t, 110, 0.4, 44100, 2, 3*time.Second),
	}

	res, err := o.Process(context.Background(), unit)
	require.NoError(t, err)

	assert.InDelta(t, float64(10*time.Second), float64(res.FinalDuration), float64(time.Millisecond))
	assert.InDelta(t, 10.0/3, res.MixStats.MusicLoops, 1e-3)
	assert.Equal(t, stretch.NameNone, res.Strategy)
	assert.Equal(t, quality.Pass, res.Quality.Verdict)
	assert.InDelta(t, 1.0, res.Quality.Ratio, 1e-12)
	assert.Equal(t, []pipeline.State{
		pipeline.Received, pipeline.Verified, pipeline.Mixed, pipeline.Reconciled, pipeline.Done,
	}, res.History)
	assert.Empty(t, res.Warnings)
}

func TestProcess_PitchPreservingSpeedUp(t *testing.T) {
	o := newOrchestrator(t, func(c *config.Config) {
		c.Pipeline.SpeedAdjustmentEnabled = true
		c.Pipeline.SpeedFactor = 1.05
	})
	unit := pipeline.Unit{
		ID:        "story-2",
		Narration: sine(t, 220, 0.4, 44100, 2, 10*time.Second),
		Music:     sine(t, 110, 0.4, 44100, 2, 4*time.Second),
	}

	res, err := o.Process(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, stretch.NamePhaseVocoder, res.Strategy)
	assert.True(t, res.Reached(pipeline.Stretched))
	assert.InDelta(t, 9.524, res.FinalDuration.Seconds(), 0.001)
	assert.True(t, quality.DefaultBounds.Contains(res.Quality.Ratio), "ratio %v", res.Quality.Ratio)
	assert.Empty(t, res.Warnings)
}

func TestProcess_StretchDurationProperty(t *testing.T) {
	narration := sine(t, 220, 0.4, 44100, 2, 2*time.Second)
	music := sine(t, 110, 0.4, 44100, 2, time.Second)

	for _, factor := range []float64{0.75, 0.9, 1.1, 1.5} {
		o := newOrchestrator(t, func(c *config.Config) {
			c.Pipeline.SpeedAdjustmentEnabled = true
			c.Pipeline.SpeedFactor = factor
		})
		res, err := o.Process(context.Background(), pipeline.Unit{ID: "p", Narration: narration, Music: music})
		require.NoError(t, err, "factor %v", factor)

		want := narration.Seconds() / factor
		assert.InDelta(t, want, res.FinalDuration.Seconds(), 0.001, "factor %v", factor)
	}
}

func TestProcess_TrimsToTimeline(t *testing.T) {
	o := newOrchestrator(t, nil)
	unit := pipeline.Unit{
		ID:        "story-3",
		Narration: sine(t, 220, 0.4, 44100, 1, 27310*time.Millisecond),
		Music:     sine(t, 110, 0.4, 44100, 1, 5*time.Second),
		Target:    27273 * time.Millisecond,
	}

	res, err := o.Process(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, 27273*time.Millisecond, res.TargetDuration)
	assert.LessOrEqual(t, res.Difference.Abs(), time.Millisecond)
	assert.Equal(t, audio.FramesFor(27273*time.Millisecond, 44100), res.Clip.Frames())
}

func TestProcess_FatalMismatch(t *testing.T) {
	o := newOrchestrator(t, func(c *config.Config) {
		c.Pipeline.DurationFatalThresholdMS = 200
	})
	unit := pipeline.Unit{
		ID:        "story-4",
		Narration: sine(t, 220, 0.4, 44100, 2, 2*time.Second),
		Music:     sine(t, 110, 0.4, 44100, 2, time.Second),
		Target:    2500 * time.Millisecond,
	}

	res, err := o.Process(context.Background(), unit)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDurationMismatchFatal)
	assert.Equal(t, pipeline.Failed, res.State())
	assert.True(t, res.Reached(pipeline.Mixed))
	assert.False(t, res.Reached(pipeline.Reconciled))
	assert.True(t, res.Clip.IsZero())
}

func TestProcess_CapabilityUnavailableWarns(t *testing.T) {
	o := newOrchestrator(t, func(c *config.Config) {
		c.Pipeline.SpeedAdjustmentEnabled = true
		c.Pipeline.SpeedFactor = 1.1
		c.Pipeline.HighQualityStretch = false
	})
	unit := pipeline.Unit{
		ID:        "story-5",
		Narration: sine(t, 220, 0.4, 44100, 2, 2*time.Second),
		Music:     sine(t, 110, 0.4, 44100, 2, time.Second),
	}

	res, err := o.Process(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, stretch.NameNaiveResample, res.Strategy)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, apperrors.CodeCapabilityUnavailable, res.Warnings[0].Code)
	assert.Equal(t, "stretch", res.Warnings[0].Stage)
	assert.Equal(t, pipeline.Done, res.State())
}

func TestProcess_DegradedQualityIsAdvisory(t *testing.T) {
	cfg := config.Default()
	logger := zaptest.NewLogger(t)
	opts := pipeline.OptionsFrom(cfg.Pipeline)
	opts.SpeedAdjustment = true
	opts.Speed = 1.2

	o := pipeline.NewOrchestratorWith(opts, quietStretcher{}, mix.NewMixer(cfg, logger), fakeEnhancer{}, logger)
	res, err := o.Process(context.Background(), pipeline.Unit{
		ID:        "story-6",
		Narration: sine(t, 220, 0.4, 44100, 2, 2*time.Second),
	})
	require.NoError(t, err)

	assert.Equal(t, quality.Degraded, res.Quality.Verdict)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, apperrors.CodeQualityDegraded, res.Warnings[0].Code)
	assert.Equal(t, pipeline.Done, res.State())
}

func TestProcess_Enhancement(t *testing.T) {
	cfg := config.Default()
	logger := zaptest.NewLogger(t)
	opts := pipeline.OptionsFrom(cfg.Pipeline)
	opts.Enhance = true
	narration := sine(t, 220, 0.4, 44100, 2, 2*time.Second)
	music := sine(t, 110, 0.4, 44100, 2, time.Second)

	t.Run("applied", func(t *testing.T) {
		o := pipeline.NewOrchestratorWith(opts, nil, mix.NewMixer(cfg, logger), fakeEnhancer{}, logger)
		res, err := o.Process(context.Background(), pipeline.Unit{ID: "e1", Narration: narration, Music: music})
		require.NoError(t, err)
		assert.True(t, res.Reached(pipeline.Enhanced))
		assert.Empty(t, res.Warnings)
	})

	t.Run("failure_keeps_mix", func(t *testing.T) {
		failing := fakeEnhancer{err: apperrors.EnhancementFailure("codec round trip degraded")}
		o := pipeline.NewOrchestratorWith(opts, nil, mix.NewMixer(cfg, logger), failing, logger)
		res, err := o.Process(context.Background(), pipeline.Unit{ID: "e2", Narration: narration, Music: music})
		require.NoError(t, err)

		assert.False(t, res.Reached(pipeline.Enhanced))
		assert.Equal(t, pipeline.Done, res.State())
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, apperrors.CodeEnhancementFailure, res.Warnings[0].Code)

		// Same as a run with enhancement disabled.
		plain := opts
		plain.Enhance = false
		ref, err := pipeline.NewOrchestratorWith(plain, nil, mix.NewMixer(cfg, logger), nil, logger).
			Process(context.Background(), pipeline.Unit{ID: "e3", Narration: narration, Music: music})
		require.NoError(t, err)
		assert.True(t, ref.Clip.Equal(res.Clip))
	})

	t.Run("real_enhancer", func(t *testing.T) {
		o := newOrchestrator(t, func(c *config.Config) { c.Pipeline.EnhancementEnabled = true })
		res, err := o.Process(context.Background(), pipeline.Unit{ID: "e4", Narration: narration, Music: music})
		require.NoError(t, err)
		assert.True(t, res.Reached(pipeline.Enhanced))
		assert.InDelta(t, -1, audio.GainToDB(res.Clip.Peak()), 0.01)
	})
}

func TestProcess_Rejections(t *testing.T) {
	o := newOrchestrator(t, nil)

	t.Run("cancelled_before_start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := o.Process(ctx, pipeline.Unit{ID: "c", Narration: sine(t, 220, 0.4, 44100, 2, time.Second)})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.History)
	})

	t.Run("empty_narration", func(t *testing.T) {
		res, err := o.Process(context.Background(), pipeline.Unit{ID: "e"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
		assert.Equal(t, []pipeline.State{pipeline.Received, pipeline.Failed}, res.History)
	})

	t.Run("negative_target", func(t *testing.T) {
		_, err := o.Process(context.Background(), pipeline.Unit{
			ID:        "n",
			Narration: sine(t, 220, 0.4, 44100, 2, time.Second),
			Target:    -time.Second,
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
	})
}

func TestExpectedDuration(t *testing.T) {
	narration := audio.Silence(441000, 44100, 2)

	o := newOrchestrator(t, nil)
	assert.Equal(t, 10*time.Second, o.ExpectedDuration(narration))

	o = newOrchestrator(t, func(c *config.Config) {
		c.Pipeline.SpeedAdjustmentEnabled = true
		c.Pipeline.SpeedFactor = 1.05
	})
	assert.InDelta(t, 9.5238, o.ExpectedDuration(narration).Seconds(), 1e-4)
}
