package audio

func stereoToMono(st []float32) []float32 {
	n := len(st) / 2
	dst := make([]float32, n)
	for i := range n {
		dst[i] = (st[2*i] + st[2*i+1]) / 2
	}
	return dst
}

func monoToStereo(m []float32) []float32 {
	dst := make([]float32, len(m)*2)
	for i, v := range m {
		dst[2*i], dst[2*i+1] = v, v
	}
	return dst
}

func downmix(samples []float32, channels int) []float32 {
	n := len(samples) / channels
	dst := make([]float32, n)
	for i := range n {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		dst[i] = sum / float32(channels)
	}
	return dst
}
