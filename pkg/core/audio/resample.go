package audio

// Standard sample rates for the live pipeline. The hosted stream accepts
// 16 kHz PCM uplink and produces 24 kHz PCM downlink.
const (
	// InputRate is the sample rate of audio sent to the speech stream.
	InputRate = 16000
	// OutputRate is the sample rate of audio received from the speech stream.
	OutputRate = 24000
)

// Downsample converts samples from inRate to outRate by block-averaging
// decimation: the input is partitioned into inRate/outRate sized windows and
// each window is averaged to one output sample. When the rates are equal the
// input is returned unchanged. When outRate > inRate the input is also
// returned unchanged: this function never upsamples, since capture always
// targets a rate at or below the device's native rate.
func Downsample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate || outRate > inRate || inRate <= 0 || outRate <= 0 {
		return samples
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		var sum float32
		count := 0
		for j := start; j < end && j < len(samples); j++ {
			sum += samples[j]
			count++
		}
		if count > 0 {
			out[i] = sum / float32(count)
		}
	}
	return out
}
