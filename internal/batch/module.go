package batch

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/cache"
	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/pipeline"
	"github.com/Raikerian/narrmix/internal/reportstore"
)

// Module provides the batch runner.
var Module = fx.Module("batch",
	fx.Provide(NewRunner),
)

// NewRunnerParams holds dependencies for NewRunner.
type NewRunnerParams struct {
	fx.In
	Cfg          *config.Config
	LC           fx.Lifecycle
	Orchestrator *pipeline.Orchestrator
	Codecs       *codec.Registry
	Clips        *cache.ClipCache
	Store        *reportstore.Store
	Logger       *zap.Logger
}

// NewRunner creates the runner and releases its output lock on shutdown.
func NewRunner(params NewRunnerParams) *Runner {
	var recorder Recorder
	if params.Store.Enabled() {
		recorder = params.Store
	}

	r := NewRunnerWith(Options{
		Concurrency: params.Cfg.Batch.Concurrency,
		WorkDir:     params.Cfg.Batch.WorkDir,
		OutputDir:   params.Cfg.Batch.OutputDir,
		SampleRate:  params.Cfg.Audio.SampleRate,
		Channels:    params.Cfg.Audio.Channels,
	}, params.Orchestrator, params.Codecs, params.Clips, recorder, params.Logger)

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.Close()
		},
	})
	return r
}
