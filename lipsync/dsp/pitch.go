package dsp

const (
	PitchMinHz = 80.0
	PitchMaxHz = 400.0

	pitchPeakThreshold = 0.3
)

// Pitch estimates the fundamental frequency with a normalised
// autocorrelation. Lags between sr/400 and sr/80 are searched for local
// peaks of at least 0.3; the tallest one wins. It returns 0 for unvoiced
// or silent frames.
func Pitch(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) < 2 {
		return 0
	}
	minLag := int(float64(sampleRate) / PitchMaxHz)
	maxLag := int(float64(sampleRate) / PitchMinHz)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > len(samples) {
		maxLag = len(samples)
	}
	if maxLag-minLag < 3 {
		return 0
	}

	r0 := autocorr(samples, 0)
	if r0 <= 0 {
		return 0
	}
	search := make([]float64, maxLag-minLag)
	for i := range search {
		search[i] = autocorr(samples, minLag+i) / r0
	}

	peaks := findPeaks(search, pitchPeakThreshold, 1)
	if len(peaks) == 0 {
		return 0
	}
	best := peaks[0]
	for _, p := range peaks[1:] {
		if search[p] > search[best] {
			best = p
		}
	}
	return clamp(float64(sampleRate)/float64(best+minLag), PitchMinHz, PitchMaxHz)
}

func autocorr(x []float64, lag int) float64 {
	var sum float64
	for i := 0; i+lag < len(x); i++ {
		sum += x[i] * x[i+lag]
	}
	return sum
}
