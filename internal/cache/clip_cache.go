// Package cache holds decoded music beds shared across processing units.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Raikerian/narrmix/pkg/audio"
)

// LoadFunc decodes the file at path in the working format.
type LoadFunc func(ctx context.Context, path string) (audio.Clip, error)

// ClipCache is an LRU of decoded clips. Clips are immutable, so a cached
// value can be handed to several workers at once. Concurrent misses on the
// same key decode once.
type ClipCache struct {
	*lru.Cache[string, audio.Clip]
	group      singleflight.Group
	sampleRate int
	channels   int
}

// NewClipCache creates a ClipCache holding up to size clips in the given
// working format.
func NewClipCache(size, sampleRate, channels int) (*ClipCache, error) {
	lruCache, err := lru.New[string, audio.Clip](size)
	if err != nil {
		return nil, err
	}

	return &ClipCache{
		Cache:      lruCache,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Key builds the cache key for path: absolute path, size and modification
// time, plus the working format. Editing a file in place changes its key.
func (c *ClipCache) Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d|%dHz|%dch", abs, info.Size(), info.ModTime().UnixNano(), c.sampleRate, c.channels), nil
}

// GetOrLoad returns the cached clip for path or decodes it with load.
func (c *ClipCache) GetOrLoad(ctx context.Context, path string, load LoadFunc) (audio.Clip, bool, error) {
	key, err := c.Key(path)
	if err != nil {
		// Let the loader report a missing file with its own error.
		clip, lerr := load(ctx, path)
		return clip, false, lerr
	}

	if clip, ok := c.Get(key); ok {
		return clip, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if clip, ok := c.Get(key); ok {
			return clip, nil
		}
		clip, err := load(ctx, path)
		if err != nil {
			return audio.Clip{}, err
		}
		clip = clip.Conform(c.sampleRate, c.channels)
		c.Add(key, clip)
		return clip, nil
	})
	if err != nil {
		return audio.Clip{}, false, err
	}
	return v.(audio.Clip), false, nil
}
