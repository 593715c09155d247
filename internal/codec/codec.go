// Package codec reads and writes audio files. WAV is handled in pure Go;
// every other container goes through ffmpeg.
package codec

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// Decoder reads a file into a clip.
type Decoder interface {
	Decode(ctx context.Context, path string) (audio.Clip, error)
}

// Encoder writes a clip to a file.
type Encoder interface {
	Encode(ctx context.Context, clip audio.Clip, path string) error
}

// Prober reports a container's duration without decoding it.
type Prober interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// Codec is a file format backend.
type Codec interface {
	Decoder
	Encoder
	Prober
	Name() string
}

// Registry routes files to the WAV codec by extension and to ffmpeg
// otherwise.
type Registry struct {
	wav    *WAV
	ffmpeg *FFmpeg
	logger *zap.Logger
}

// NewRegistry creates a registry from the audio configuration.
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	wav := NewWAV(cfg.Audio.BitDepth)
	return &Registry{
		wav:    wav,
		ffmpeg: NewFFmpeg(cfg.Audio, wav, logger),
		logger: logger,
	}
}

// For returns the codec that handles path.
func (r *Registry) For(path string) Codec {
	if IsWAV(path) {
		return r.wav
	}
	return r.ffmpeg
}

// FFmpeg returns the external tool codec.
func (r *Registry) FFmpeg() *FFmpeg { return r.ffmpeg }

// Decode implements Decoder. WAV files that are not integer PCM are handed
// to ffmpeg when it is installed.
func (r *Registry) Decode(ctx context.Context, path string) (audio.Clip, error) {
	c := r.For(path)
	r.logger.Debug("Decoding audio", zap.String("path", path), zap.String("codec", c.Name()))
	clip, err := c.Decode(ctx, path)
	if errors.Is(err, ErrNotPCM) && r.ffmpeg.Available() {
		r.logger.Debug("Decoding non-PCM wav through ffmpeg", zap.String("path", path))
		return r.ffmpeg.Decode(ctx, path)
	}
	return clip, err
}

// Encode implements Encoder.
func (r *Registry) Encode(ctx context.Context, clip audio.Clip, path string) error {
	c := r.For(path)
	r.logger.Debug("Encoding audio",
		zap.String("path", path),
		zap.String("codec", c.Name()),
		zap.Duration("duration", clip.Duration()))
	return c.Encode(ctx, clip, path)
}

// Probe implements Prober.
func (r *Registry) Probe(ctx context.Context, path string) (time.Duration, error) {
	return r.For(path).Probe(ctx, path)
}

// IsWAV reports whether path has a .wav extension.
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

func ioErr(err error, format string, args ...any) error {
	return apperrors.IOFailure(err, format, args...).WithStage("codec")
}
