package codec

import (
	"context"
	"errors"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Raikerian/narrmix/pkg/audio"
)

const wavFormatPCM = 1

// ErrNotPCM marks WAV files whose samples are not integer PCM, such as IEEE
// float or extensible layouts. The pure Go decoder would misread them.
var ErrNotPCM = errors.New("wav data is not integer pcm")

// WAV is a pure Go PCM WAV codec.
type WAV struct {
	bitDepth int
}

// NewWAV creates a WAV codec that writes bitDepth-bit PCM.
func NewWAV(bitDepth int) *WAV {
	return &WAV{bitDepth: bitDepth}
}

// Name implements Codec.
func (w *WAV) Name() string { return "wav" }

// Decode implements Decoder.
func (w *WAV) Decode(_ context.Context, path string) (audio.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return audio.Clip{}, ioErr(err, "open %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return audio.Clip{}, ioErr(dec.Err(), "%s is not a valid wav file", path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return audio.Clip{}, ioErr(ErrNotPCM, "%s uses wav format %d", path, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return audio.Clip{}, ioErr(err, "decode %s", path)
	}

	clip, err := audio.FromInt(buf.Data, int(dec.BitDepth), int(dec.SampleRate), int(dec.NumChans))
	if err != nil {
		return audio.Clip{}, ioErr(err, "decode %s", path)
	}
	return clip, nil
}

// Encode implements Encoder.
func (w *WAV) Encode(_ context.Context, clip audio.Clip, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return ioErr(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ioErr(cerr, "close %s", path)
		}
	}()

	enc := wav.NewEncoder(f, clip.SampleRate(), w.bitDepth, clip.Channels(), wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: clip.Channels(),
			SampleRate:  clip.SampleRate(),
		},
		Data:           clip.ToInt(w.bitDepth),
		SourceBitDepth: w.bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return ioErr(err, "write %s", path)
	}
	if err := enc.Close(); err != nil {
		return ioErr(err, "finalize %s", path)
	}
	return nil
}

// Probe implements Prober from the PCM chunk size in the header.
func (w *WAV) Probe(_ context.Context, path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, ioErr(err, "open %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return 0, ioErr(err, "probe %s", path)
	}

	frameBytes := int64(dec.NumChans) * int64(dec.BitDepth/8)
	if frameBytes == 0 || dec.SampleRate == 0 {
		return 0, ioErr(nil, "probe %s: missing format chunk", path)
	}
	frames := int(dec.PCMLen() / frameBytes)
	return audio.FramesToDuration(frames, int(dec.SampleRate)), nil
}
