package audio

import "math"

// Resample converts PCM16 samples between sample rates using linear
// interpolation. Equal rates or empty input return the input slice
// unchanged. Output samples are rounded to the nearest integer and
// clamped to the int16 range.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if len(samples) == 0 || inputRate == outputRate {
		return samples
	}

	ratio := float64(inputRate) / float64(outputRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		left := int(pos)
		right := left + 1
		if right > len(samples)-1 {
			right = len(samples) - 1
		}
		alpha := pos - float64(left)
		value := float64(samples[left]) +
			(float64(samples[right])-float64(samples[left]))*alpha

		rounded := math.Round(value)
		if rounded > math.MaxInt16 {
			rounded = math.MaxInt16
		} else if rounded < math.MinInt16 {
			rounded = math.MinInt16
		}
		out[i] = int16(rounded)
	}

	return out
}
