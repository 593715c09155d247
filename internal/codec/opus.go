package codec

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/Raikerian/narrmix/pkg/audio"
)

// maxPacketSize bounds one encoded Opus packet.
const maxPacketSize = 4000

// Opus round-trips clips through the Opus codec to preview export loss.
type Opus struct {
	bitrate int
}

// NewOpus creates an Opus round-tripper at bitrate bits per second.
func NewOpus(bitrate int) *Opus {
	return &Opus{bitrate: bitrate}
}

// RoundTrip encodes clip to Opus at 48 kHz in 20 ms frames, decodes it back
// and returns the result at the clip's own rate and length.
func (o *Opus) RoundTrip(clip audio.Clip) (audio.Clip, error) {
	ch := clip.Channels()
	if ch != 1 && ch != 2 {
		return audio.Clip{}, ioErr(nil, "opus supports 1 or 2 channels, got %d", ch)
	}

	encoder, err := gopus.NewEncoder(audio.OpusSampleRate, ch, gopus.Audio)
	if err != nil {
		return audio.Clip{}, ioErr(err, "failed to create opus encoder")
	}
	encoder.SetBitrate(o.bitrate)

	decoder, err := gopus.NewDecoder(audio.OpusSampleRate, ch)
	if err != nil {
		return audio.Clip{}, ioErr(err, "failed to create opus decoder")
	}

	pcm := clip.Resample(audio.OpusSampleRate).ToInt16()
	frameLen := audio.OpusFrameSize * ch
	out := make([]int16, 0, len(pcm)+frameLen)
	frame := make([]int16, frameLen)

	for off := 0; off < len(pcm); off += frameLen {
		n := copy(frame, pcm[off:])
		clear(frame[n:])

		packet, err := encoder.Encode(frame, audio.OpusFrameSize, maxPacketSize)
		if err != nil {
			return audio.Clip{}, ioErr(err, "opus encode at sample %d", off)
		}
		decoded, err := decoder.Decode(packet, audio.OpusFrameSize, false)
		if err != nil {
			return audio.Clip{}, ioErr(err, "opus decode at sample %d", off)
		}
		out = append(out, decoded...)
	}

	if len(out) < len(pcm) {
		return audio.Clip{}, ioErr(nil, "opus returned %d samples, want %d", len(out), len(pcm))
	}

	decodedClip, err := audio.FromInt16(out[:len(pcm)], audio.OpusSampleRate, ch)
	if err != nil {
		return audio.Clip{}, ioErr(err, "opus round trip")
	}

	back := decodedClip.Resample(clip.SampleRate())
	if back.Frames() != clip.Frames() {
		back = back.PadTo(clip.Frames()).Slice(0, clip.Frames())
	}
	return back, nil
}

func (o *Opus) String() string {
	return fmt.Sprintf("opus@%dbps", o.bitrate)
}
