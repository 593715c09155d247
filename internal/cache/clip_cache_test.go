package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/narrmix/internal/cache"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/pkg/audio"
)

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func countingLoader(calls *atomic.Int32, clip audio.Clip) cache.LoadFunc {
	return func(ctx context.Context, path string) (audio.Clip, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return clip, nil
	}
}

func TestNewClipCache(t *testing.T) {
	c, err := cache.NewClipCache(4, 44100, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	_, err = cache.NewClipCache(0, 44100, 2)
	assert.Error(t, err)
}

func TestClipCache_GetOrLoad(t *testing.T) {
	c, err := cache.NewClipCache(4, 44100, 2)
	require.NoError(t, err)

	path := touch(t, "bed.wav")
	var calls atomic.Int32
	load := countingLoader(&calls, audio.Silence(4800, 48000, 1))

	first, hit, err := c.GetOrLoad(context.Background(), path, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 44100, first.SampleRate(), "cached clips are conformed")
	assert.Equal(t, 2, first.Channels())

	second, hit, err := c.GetOrLoad(context.Background(), path, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.True(t, first.Equal(second))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClipCache_ConcurrentMissesLoadOnce(t *testing.T) {
	c, err := cache.NewClipCache(4, 44100, 2)
	require.NoError(t, err)

	path := touch(t, "bed.wav")
	var calls atomic.Int32
	load := countingLoader(&calls, audio.Silence(100, 44100, 2))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrLoad(context.Background(), path, load)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestClipCache_ErrorsAreNotCached(t *testing.T) {
	c, err := cache.NewClipCache(4, 44100, 2)
	require.NoError(t, err)

	path := touch(t, "bed.wav")
	boom := errors.New("decode failed")
	_, _, err = c.GetOrLoad(context.Background(), path, func(context.Context, string) (audio.Clip, error) {
		return audio.Clip{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestClipCache_MissingFileDelegatesToLoader(t *testing.T) {
	c, err := cache.NewClipCache(4, 44100, 2)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "nope.wav")
	_, _, err = c.GetOrLoad(context.Background(), missing, func(_ context.Context, p string) (audio.Clip, error) {
		_, err := os.Stat(p)
		return audio.Clip{}, err
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClipCache_KeyTracksFormatAndContent(t *testing.T) {
	path := touch(t, "bed.wav")
	stereo, err := cache.NewClipCache(1, 44100, 2)
	require.NoError(t, err)
	mono, err := cache.NewClipCache(1, 44100, 1)
	require.NoError(t, err)

	k1, err := stereo.Key(path)
	require.NoError(t, err)
	k2, err := mono.Key(path)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	require.NoError(t, os.WriteFile(path, []byte("longer content"), 0o600))
	k3, err := stereo.Key(path)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestNewClipCacheProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.MusicClips = 0
	c, err := cache.NewClipCacheProvider(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, c)
}
