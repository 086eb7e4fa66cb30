package dsp

import (
	"encoding/binary"
	"math"

	"github.com/charmbracelet/log"
)

// MinAnalysisSize is the smallest FFT size used for spectral analysis.
// Shorter frames are zero-padded.
const MinAnalysisSize = 512

// Features is the acoustic description of one analysed frame.
type Features struct {
	RMS              float64 `json:"rms"`
	ZCR              float64 `json:"zcr"`
	MelLow           float64 `json:"mel_low"`
	MelMid           float64 `json:"mel_mid"`
	MelHigh          float64 `json:"mel_high"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralFlatness float64 `json:"spectral_flatness"`
	F1               float64 `json:"f1"`
	F2               float64 `json:"f2"`
	F0               float64 `json:"f0"`
}

// IsZero reports whether every field is zero.
func (f Features) IsZero() bool {
	return f == Features{}
}

// Valid reports whether every field is finite.
func (f Features) Valid() bool {
	for _, v := range []float64{
		f.RMS, f.ZCR, f.MelLow, f.MelMid, f.MelHigh,
		f.SpectralCentroid, f.SpectralFlatness, f.F1, f.F2, f.F0,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ExtractEnergy computes only the time-domain features (RMS and ZCR).
func ExtractEnergy(samples []float64) Features {
	return Features{
		RMS: RMS(samples),
		ZCR: ZCR(samples),
	}
}

// Extract computes the full feature vector for one frame. Any failure
// inside the analysis yields a zero vector.
func Extract(samples []float64, sampleRate int) (f Features) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("Feature extraction failed", "error", r, "samples", len(samples))
			f = Features{}
		}
	}()

	if len(samples) == 0 || sampleRate <= 0 {
		return Features{}
	}

	f = ExtractEnergy(samples)

	spec := Analyze(samples, sampleRate)
	f.MelLow, f.MelMid, f.MelHigh = spec.MelRatios()
	f.SpectralCentroid = spec.Centroid()
	f.SpectralFlatness = spec.Flatness()

	f.F1, f.F2 = Formants(samples, sampleRate)
	f.F0 = Pitch(samples, sampleRate)

	if !f.Valid() {
		log.Debug("Feature extraction produced non-finite values", "samples", len(samples))
		return Features{}
	}
	return f
}

// RMS returns the root mean square of the frame.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZCR returns the zero-crossing rate: the sum of absolute sign differences
// between consecutive samples divided by 2N. A zero sample has sign 0, so
// touching zero counts as half a crossing.
func ZCR(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var changes float64
	prev := sign(samples[0])
	for _, s := range samples[1:] {
		cur := sign(s)
		changes += math.Abs(cur - prev)
		prev = cur
	}
	return math.Min(changes/(2*float64(n)), 1)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// SamplesFromPCM16 converts little-endian signed 16-bit PCM into float
// samples on the int16 amplitude scale. A trailing odd byte is ignored.
func SamplesFromPCM16(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// SamplesFromInt16 converts int16 samples to float samples.
func SamplesFromInt16(in []int16) []float64 {
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = float64(s)
	}
	return out
}
