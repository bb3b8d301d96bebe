package audio

// Resample converts interleaved PCM samples from inputRate to outputRate
// using linear interpolation. The function is pure and stateless: equal
// rates return the input slice unchanged, otherwise a new slice is
// allocated and the input is never modified.
//
// The output holds ceil(inputFrames*outputRate/inputRate) frames. Output
// frame i is interpolated between the two source frames straddling position
// i*inputRate/outputRate; positions at or past the last source frame hold
// the last frame instead of interpolating beyond the end.
func Resample(input []float32, inputRate, outputRate, channels int) []float32 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}
	if channels < 1 {
		channels = 1
	}

	inputFrames := len(input) / channels
	outputFrames := (inputFrames*outputRate + inputRate - 1) / inputRate
	ratio := float64(inputRate) / float64(outputRate)

	output := make([]float32, outputFrames*channels)
	for i := 0; i < outputFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)

		if idx >= inputFrames-1 {
			// No frame pair left to interpolate, hold the final frame.
			for ch := 0; ch < channels; ch++ {
				output[i*channels+ch] = input[(inputFrames-1)*channels+ch]
			}
			continue
		}

		frac := pos - float64(idx)
		for ch := 0; ch < channels; ch++ {
			sample1 := input[idx*channels+ch]
			sample2 := input[(idx+1)*channels+ch]
			output[i*channels+ch] = float32(float64(sample1)*(1.0-frac) + float64(sample2)*frac)
		}
	}

	return output
}

// OutputLength returns the number of samples Resample produces for an input
// of inputLen samples without performing the conversion.
func OutputLength(inputLen, inputRate, outputRate, channels int) int {
	if inputRate == outputRate {
		return inputLen
	}
	if channels < 1 {
		channels = 1
	}
	inputFrames := inputLen / channels
	outputFrames := (inputFrames*outputRate + inputRate - 1) / inputRate
	return outputFrames * channels
}

// ApplyGain scales samples in place. A gain of 1 is a no-op.
func ApplyGain(samples []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}
