package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raikerian/narrmix/internal/config"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// FFmpeg decodes and encodes any container the ffmpeg binary understands.
// Decoding pipes s16le PCM at the working format; encoding writes a
// temporary WAV next to the target and transcodes it.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
	channels    int
	wav         *WAV
	logger      *zap.Logger
}

// NewFFmpeg creates the ffmpeg codec.
func NewFFmpeg(cfg config.AudioConfig, wav *WAV, logger *zap.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		sampleRate:  cfg.SampleRate,
		channels:    cfg.Channels,
		wav:         wav,
		logger:      logger,
	}
}

// Name implements Codec.
func (f *FFmpeg) Name() string { return "ffmpeg" }

// Available reports whether both binaries resolve on PATH.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(f.ffprobePath)
	return err == nil
}

// Decode implements Decoder.
func (f *FFmpeg) Decode(ctx context.Context, path string) (audio.Clip, error) {
	// #nosec G204 - binary path is from config, input path is validated by the caller
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-v", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.sampleRate),
		"-ac", strconv.Itoa(f.channels),
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return audio.Clip{}, ioErr(err, "ffmpeg decode %s: %s", path, strings.TrimSpace(stderr.String()))
	}

	pcm := audio.LEToPCMInt16(stdout.Bytes())
	pcm = pcm[:len(pcm)-len(pcm)%f.channels]
	clip, err := audio.FromInt16(pcm, f.sampleRate, f.channels)
	if err != nil {
		return audio.Clip{}, ioErr(err, "decode %s", path)
	}
	return clip, nil
}

// Encode implements Encoder. The output codec follows the extension; mp3 is
// written at VBR quality 0 without a Xing header so players report the
// sample-accurate length.
func (f *FFmpeg) Encode(ctx context.Context, clip audio.Clip, path string) error {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".narrmix-%s.wav", uuid.NewString()))
	if err := f.wav.Encode(ctx, clip, tmp); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Failed to remove temporary wav", zap.String("path", tmp), zap.Error(err))
		}
	}()

	args := []string{"-v", "error", "-y", "-i", tmp}
	args = append(args, encodeArgs(path)...)
	args = append(args, path)

	f.logger.Debug("Executing ffmpeg", zap.String("path", f.ffmpegPath), zap.Strings("args", args))

	// #nosec G204 - binary path is from config, args are constructed internally
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ioErr(err, "ffmpeg encode %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Probe implements Prober using ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	// #nosec G204 - ffprobe path is from config, file path is validated by the caller
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-i", path,
		"-show_entries", "format=duration",
		"-v", "quiet",
		"-of", "csv=p=0",
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, ioErr(err, "ffprobe %s", path)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, ioErr(err, "parse ffprobe duration for %s", path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	// #nosec G204 - binary path is from config
	out, err := exec.CommandContext(ctx, f.ffmpegPath, "-version").Output()
	if err != nil {
		return "", ioErr(err, "ffmpeg -version")
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// encodeArgs picks codec options by output extension.
func encodeArgs(path string) []string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return []string{"-codec:a", "libmp3lame", "-q:a", "0", "-write_xing", "0"}
	case ".m4a", ".aac", ".mp4":
		return []string{"-codec:a", "aac", "-b:a", "192k"}
	case ".ogg", ".opus":
		return []string{"-codec:a", "libopus", "-b:a", "128k"}
	case ".flac":
		return []string{"-codec:a", "flac"}
	default:
		return nil
	}
}
