package reportstore

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/config"
)

// Module provides the run history store.
var Module = fx.Module("reportstore",
	fx.Provide(NewStore),
)

// NewStoreParams holds dependencies for NewStore.
type NewStoreParams struct {
	fx.In
	Cfg    *config.Config
	LC     fx.Lifecycle
	Logger *zap.Logger
}

// NewStore opens the configured store and closes it on shutdown.
func NewStore(params NewStoreParams) (*Store, error) {
	store, err := Open(params.Cfg.Report.DatabasePath)
	if err != nil {
		return nil, err
	}

	if store.Enabled() {
		params.Logger.Debug("Run history enabled", zap.String("path", store.Path()))
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}
