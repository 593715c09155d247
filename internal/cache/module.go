package cache

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/config"
)

// Module provides the decoded clip cache.
var Module = fx.Module("cache",
	fx.Provide(NewClipCacheProvider),
)

// NewClipCacheProvider creates a ClipCache with config-derived size.
func NewClipCacheProvider(cfg *config.Config, logger *zap.Logger) (*ClipCache, error) {
	size := cfg.Cache.MusicClips
	if size <= 0 {
		logger.Warn("Music clip cache size is not configured or is invalid, defaulting to 16",
			zap.Int("configuredSize", size))
		size = 16
	}
	logger.Debug("Creating ClipCache", zap.Int("size", size))

	return NewClipCache(size, cfg.Audio.SampleRate, cfg.Audio.Channels)
}
