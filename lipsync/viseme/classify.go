package viseme

import "github.com/dgnsrekt/lipsync/lipsync/dsp"

// Decision thresholds.
const (
	SibilantZCR      = 0.3
	SibilantFlatness = 0.5
	SibilantMelHigh  = 0.4
	NasalMelMid      = 0.6
	NasalEnergy      = 0.3
)

// Classify picks a viseme for one frame. The checks run in a fixed order:
// silence, sibilance, nasal or plosive closure, the F1/F2 vowel plane and
// finally the spectral centroid when no formants were found.
func Classify(f dsp.Features, scale, silenceThreshold float64) Viseme {
	if f.RMS < silenceThreshold {
		return Silence
	}

	switch {
	case f.ZCR > SibilantZCR,
		f.SpectralFlatness > SibilantFlatness,
		f.MelHigh > SibilantMelHigh:
		return Sibilant
	case f.MelMid > NasalMelMid:
		if f.RMS < NasalEnergy*scale {
			return MN
		}
		return Plosive
	}

	if f.F1 > 0 && f.F2 > 0 {
		return vowelFromFormants(f.F1, f.F2)
	}
	return vowelFromCentroid(f.SpectralCentroid)
}

func vowelFromFormants(f1, f2 float64) Viseme {
	switch {
	case f1 > 700:
		if f2 >= 1400 {
			return A
		}
		return O
	case f1 > 400:
		if f2 > 2000 {
			return E
		}
		return O
	default:
		if f2 > 2200 {
			return I
		}
		return U
	}
}

func vowelFromCentroid(c float64) Viseme {
	switch {
	case c > 3000:
		return I
	case c > 1500:
		return E
	case c > 800:
		return A
	default:
		return O
	}
}
