package codec_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/internal/codec"
	"github.com/Raikerian/narrmix/internal/config"
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

func TestWAV_RoundTrip(t *testing.T) {
	for _, depth := range []int{16, 24} {
		t.Run(fmt.Sprintf("%d_bit", depth), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "out.wav")
			clip := sine(t, 440, 0.5, 44100, 2, 250*time.Millisecond)
			w := codec.NewWAV(depth)

			require.NoError(t, w.Encode(ctx, clip, path))
			back, err := w.Decode(ctx, path)
			require.NoError(t, err)

			assert.Equal(t, clip.Frames(), back.Frames())
			assert.Equal(t, clip.SampleRate(), back.SampleRate())
			assert.Equal(t, clip.Channels(), back.Channels())
			tolerance := 1.0 / float64(int(1)<<(depth-1))
			for i := 0; i < clip.Frames(); i += 101 {
				assert.InDelta(t, clip.Sample(i, 0), back.Sample(i, 0), tolerance)
			}

			d, err := w.Probe(ctx, path)
			require.NoError(t, err)
			assert.InDelta(t, float64(250*time.Millisecond), float64(d), float64(time.Millisecond))
		})
	}
}

func TestWAV_DecodeErrors(t *testing.T) {
	ctx := context.Background()
	w := codec.NewWAV(16)

	_, err := w.Decode(ctx, filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not riff"), 0o600))
	_, err = w.Decode(ctx, junk)
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
}

// writeFloatWAV writes an IEEE float (format 3) WAV file.
func writeFloatWAV(t *testing.T, path string, clip audio.Clip) {
	t.Helper()
	samples := clip.Samples()
	dataLen := uint32(len(samples) * 4)
	channels := uint16(clip.Channels())
	rate := uint32(clip.SampleRate())

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, 36+dataLen))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(3), channels, rate, rate * uint32(channels) * 4, channels * 4, uint16(32)} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dataLen))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, samples))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestWAV_RejectsFloatData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	writeFloatWAV(t, path, sine(t, 220, 0.25, 44100, 1, 200*time.Millisecond))

	_, err := codec.NewWAV(16).Decode(context.Background(), path)
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
	assert.ErrorIs(t, err, codec.ErrNotPCM)
}

func TestRegistry_FloatWAV(t *testing.T) {
	cfg := config.Default()
	reg := codec.NewRegistry(cfg, zaptest.NewLogger(t))
	path := filepath.Join(t.TempDir(), "float.wav")
	clip := sine(t, 220, 0.25, 44100, 1, 200*time.Millisecond)
	writeFloatWAV(t, path, clip)

	back, err := reg.Decode(context.Background(), path)
	if !reg.FFmpeg().Available() {
		assert.ErrorIs(t, err, codec.ErrNotPCM)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, clip.Frames(), back.Frames())
	assert.InDelta(t, clip.RMS(), back.RMS(), 1e-3)
	assert.InDelta(t, 0.25, back.Peak(), 1e-3)
}

func TestRegistry_Routing(t *testing.T) {
	reg := codec.NewRegistry(config.Default(), zaptest.NewLogger(t))

	assert.Equal(t, "wav", reg.For("a/b/story.wav").Name())
	assert.Equal(t, "wav", reg.For("STORY.WAV").Name())
	assert.Equal(t, "ffmpeg", reg.For("story.mp3").Name())
	assert.Equal(t, "ffmpeg", reg.For("story").Name())
}

func TestRegistry_WAVRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := codec.NewRegistry(config.Default(), zaptest.NewLogger(t))
	path := filepath.Join(t.TempDir(), "mix.wav")
	clip := sine(t, 220, 0.3, 44100, 2, 100*time.Millisecond)

	require.NoError(t, reg.Encode(ctx, clip, path))
	back, err := reg.Decode(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, clip.Frames(), back.Frames())

	d, err := reg.Probe(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, clip.Duration().Round(time.Millisecond), d.Round(time.Millisecond))
}

func TestFFmpeg_RoundTrip(t *testing.T) {
	cfg := config.Default()
	reg := codec.NewRegistry(cfg, zaptest.NewLogger(t))
	if !reg.FFmpeg().Available() {
		t.Skip("ffmpeg/ffprobe not installed")
	}

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mix.flac")
	clip := sine(t, 440, 0.5, 44100, 2, 500*time.Millisecond)

	require.NoError(t, reg.Encode(ctx, clip, path))
	back, err := reg.Decode(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, clip.Frames(), back.Frames())
	assert.InDelta(t, clip.RMS(), back.RMS(), 1e-3)

	d, err := reg.Probe(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, float64(clip.Duration()), float64(d), float64(10*time.Millisecond))

	version, err := reg.FFmpeg().Version(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "ffmpeg")
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.FFmpegPath = filepath.Join(t.TempDir(), "no-ffmpeg")
	cfg.Audio.FFprobePath = filepath.Join(t.TempDir(), "no-ffprobe")
	reg := codec.NewRegistry(cfg, zaptest.NewLogger(t))

	assert.False(t, reg.FFmpeg().Available())
	_, err := reg.Decode(context.Background(), "story.mp3")
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
}

func TestOpus_RoundTripKeepsLengthAndLevel(t *testing.T) {
	clip := sine(t, 440, 0.5, 44100, 2, 500*time.Millisecond)

	back, err := codec.NewOpus(128000).RoundTrip(clip)
	require.NoError(t, err)

	assert.Equal(t, clip.Frames(), back.Frames())
	assert.Equal(t, clip.SampleRate(), back.SampleRate())
	assert.InEpsilon(t, clip.RMS(), back.RMS(), 0.2)
}

func TestOpus_RejectsSurround(t *testing.T) {
	clip := audio.Silence(960, 48000, 6)
	_, err := codec.NewOpus(128000).RoundTrip(clip)
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
}
