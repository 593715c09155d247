// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/batch"
	"github.com/Raikerian/narrmix/internal/cache"
	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/enhance"
	"github.com/Raikerian/narrmix/internal/infrastructure"
	"github.com/Raikerian/narrmix/internal/mix"
	"github.com/Raikerian/narrmix/internal/pipeline"
	"github.com/Raikerian/narrmix/internal/reportstore"
	"github.com/Raikerian/narrmix/internal/stretch"
)

// Modules assembles every engine module.
func Modules() fx.Option {
	return fx.Options(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Processing stages
		stretch.Module,
		mix.Module,
		enhance.Module,
		pipeline.Module,

		// Files and persistence
		codec.Module,
		cache.Module,
		reportstore.Module,
		batch.Module,
	)
}

// Application represents the engine with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates an Application reading configuration from src. Extra options
// typically populate the components a command needs.
func New(src config.Source, opts ...fx.Option) *Application {
	options := []fx.Option{
		Modules(),
		fx.Supply(src),
		// Configure Fx to use our Zap logger for its own internal logging
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
	}
	options = append(options, opts...)
	options = append(options, fx.Invoke(registerLifecycleHooks))

	return &Application{app: fx.New(options...)}
}

// Err reports a wiring error, such as invalid configuration.
func (a *Application) Err() error {
	return a.app.Err()
}

// Start runs the OnStart hooks.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// Execute starts the application, runs fn and stops it again. Stop runs even
// when fn fails, so the output lock and history database are released.
func (a *Application) Execute(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := a.Err(); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		if stopErr := a.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = fmt.Errorf("stop application: %w", stopErr)
		}
	}()
	return fn(ctx)
}

// registerLifecycleHooks reports the engine setup once the graph is built.
func registerLifecycleHooks(lc fx.Lifecycle, cfg *config.Config, engine *stretch.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			fields := []zap.Field{
				zap.Int("sample_rate", cfg.Audio.SampleRate),
				zap.Int("channels", cfg.Audio.Channels),
				zap.Bool("speed_adjustment", cfg.Pipeline.SpeedAdjustmentEnabled),
				zap.Bool("enhancement", cfg.Pipeline.EnhancementEnabled),
			}
			for _, c := range engine.Capabilities() {
				fields = append(fields, zap.Bool("stretch."+c.Name, c.Available))
			}
			logger.Debug("Engine ready", fields...)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Debug("Engine stopped")
			return nil
		},
	})
}
