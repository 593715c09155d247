package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Raikerian/narrmix/internal/app"
	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/batch"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/internal/pipeline"
	"github.com/Raikerian/narrmix/internal/reportstore"
)

func source(t *testing.T, overrides ...func(*config.Config)) config.Source {
	t.Helper()
	dir := t.TempDir()
	return config.Source{Overrides: append([]func(*config.Config){
		func(c *config.Config) {
			c.LogLevel = "error"
			c.Batch.WorkDir = filepath.Join(dir, "work")
			c.Batch.OutputDir = filepath.Join(dir, "out")
			c.Report.DatabasePath = filepath.Join(dir, "runs.db")
		},
	}, overrides...)}
}

func TestModules_Wire(t *testing.T) {
	var (
		runner *batch.Runner
		orch   *pipeline.Orchestrator
		store  *reportstore.Store
	)
	fxApp := fxtest.New(t,
		app.Modules(),
		fx.Supply(source(t)),
		fx.Populate(&runner, &orch, &store),
	)
	fxApp.RequireStart()

	assert.Equal(t, 4, runner.Options().Concurrency)
	assert.Equal(t, 1.0, orch.Options().Speed)
	assert.True(t, store.Enabled())

	fxApp.RequireStop()
}

func TestApplication_Execute(t *testing.T) {
	var store *reportstore.Store
	a := app.New(source(t), fx.Populate(&store))
	require.NoError(t, a.Err())

	called := false
	err := a.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return store.Record(ctx, reportstore.Run{UnitID: "x", Status: reportstore.StatusDone})
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestApplication_ExecuteReturnsCallbackError(t *testing.T) {
	a := app.New(source(t))
	boom := errors.New("boom")

	err := a.Execute(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestApplication_InvalidConfig(t *testing.T) {
	a := app.New(source(t, func(c *config.Config) { c.Pipeline.SpeedFactor = 0 }))

	err := a.Execute(context.Background(), func(context.Context) error {
		t.Fatal("callback must not run with invalid configuration")
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}
