package audio

// Format constants shared by the codec, stretch and mixer layers.
const (
	// Working format for every stage.
	DefaultSampleRate = 44_100 // Hz
	DefaultChannels   = 2      // interleaved stereo
	DefaultBitDepth   = 16

	// Opus export check.
	OpusSampleRate = 48_000 // Hz
	OpusFrameSize  = 960    // samples per channel (20 ms)

	int16Scale = 32768.0
)

// SupportedSampleRate reports whether rate is one the engine accepts for its
// working format.
func SupportedSampleRate(rate int) bool {
	switch rate {
	case 8_000, 16_000, 22_050, 24_000, 32_000, 44_100, 48_000, 96_000:
		return true
	}
	return false
}
