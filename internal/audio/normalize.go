package audio

// Normalize converts raw 16-bit little-endian mono PCM bytes into a
// float32 window of exactly dstRate*windowSeconds samples in [-1, 1].
// The input is resampled from srcRate to dstRate when the rates differ,
// then zero-padded or truncated to the window length.
//
// Normalize is a pure function of its inputs; it never mutates raw.
func Normalize(raw []byte, srcRate, dstRate, windowSeconds int) []float32 {
	samples := SamplesToFloat32(raw)
	if srcRate != dstRate {
		samples = Resample(samples, srcRate, dstRate)
	}
	return FixLength(samples, dstRate*windowSeconds)
}

// SamplesToFloat32 converts 16-bit little-endian PCM bytes to float32
// samples scaled to [-1, 1]. A trailing odd byte is ignored.
func SamplesToFloat32(raw []byte) []float32 {
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Returns the input unchanged when the rates match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// FixLength pads samples with silence or truncates them so the result
// has exactly length samples
func FixLength(samples []float32, length int) []float32 {
	if length <= 0 {
		return nil
	}

	if len(samples) >= length {
		out := make([]float32, length)
		copy(out, samples[:length])
		return out
	}

	out := make([]float32, length)
	copy(out, samples)
	return out
}
