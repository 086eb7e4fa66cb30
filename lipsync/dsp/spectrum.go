package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/up-zero/gotool/mediautil"
)

// MEL filterbank layout.
const (
	MelBands   = 80
	MelMinHz   = 80.0
	MelMaxHz   = 8000.0
	melLowEnd  = 20
	melMidEnd  = 50
	flatnessEp = 1e-10
)

var (
	windowMu    sync.Mutex
	windowCache = map[int][]float32{}
)

// hamming returns a cached Hamming window of length n.
func hamming(n int) []float32 {
	windowMu.Lock()
	defer windowMu.Unlock()
	w, ok := windowCache[n]
	if !ok {
		w = mediautil.HammingWindow(n)
		windowCache[n] = w
	}
	return w
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Spectrum is the positive-frequency magnitude spectrum of one frame.
type Spectrum struct {
	Freqs     []float64
	Magnitude []float64
}

// Analyze applies a Hamming window over the whole frame, zero-pads to at
// least MinAnalysisSize samples and returns the magnitude of bins
// 0 .. nfft/2-1.
func Analyze(samples []float64, sampleRate int) Spectrum {
	n := len(samples)
	size := n
	if size < MinAnalysisSize {
		size = MinAnalysisSize
	}
	nfft := nextPow2(size)

	// the window spans the padded frame, matching a pad-then-window pipeline
	win := hamming(size)
	buf := make([]complex128, nfft)
	for i := 0; i < n; i++ {
		buf[i] = complex(samples[i]*float64(win[i]), 0)
	}
	return magnitudes(mediautil.FFT(buf), nfft, sampleRate)
}

func magnitudes(spectrum []complex128, nfft, sampleRate int) Spectrum {
	half := nfft / 2
	s := Spectrum{
		Freqs:     make([]float64, half),
		Magnitude: make([]float64, half),
	}
	binHz := float64(sampleRate) / float64(nfft)
	for k := 0; k < half; k++ {
		s.Freqs[k] = float64(k) * binHz
		s.Magnitude[k] = cmplx.Abs(spectrum[k])
	}
	return s
}

// HzToMel converts a frequency to the mel scale.
func HzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// MelToHz converts a mel value back to Hz.
func MelToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melEdges returns MelBands+2 band edge frequencies evenly spaced in mel.
func melEdges() []float64 {
	lo, hi := HzToMel(MelMinHz), HzToMel(MelMaxHz)
	edges := make([]float64, MelBands+2)
	step := (hi - lo) / float64(MelBands+1)
	for i := range edges {
		edges[i] = MelToHz(lo + step*float64(i))
	}
	return edges
}

var edgesOnce = sync.OnceValue(melEdges)

// MelBandEnergies projects the magnitude spectrum onto MelBands bands.
// Band i sums every bin between edge i and edge i+2 inclusive, so
// neighbouring bands overlap by half.
func (s Spectrum) MelBandEnergies() []float64 {
	edges := edgesOnce()
	bands := make([]float64, MelBands)
	for i := range bands {
		lo, hi := edges[i], edges[i+2]
		for k, f := range s.Freqs {
			if f > hi {
				break
			}
			if f >= lo {
				bands[i] += s.Magnitude[k]
			}
		}
	}
	return bands
}

// MelRatios returns the low, mid and high shares of total MEL energy.
// All three are zero when the spectrum carries no energy.
func (s Spectrum) MelRatios() (low, mid, high float64) {
	bands := s.MelBandEnergies()
	var total float64
	for i, b := range bands {
		total += b
		switch {
		case i < melLowEnd:
			low += b
		case i < melMidEnd:
			mid += b
		default:
			high += b
		}
	}
	if total <= 0 {
		return 0, 0, 0
	}
	return low / total, mid / total, high / total
}

// Centroid returns the magnitude-weighted mean frequency.
func (s Spectrum) Centroid() float64 {
	var num, den float64
	for k, m := range s.Magnitude {
		num += s.Freqs[k] * m
		den += m
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

// Flatness returns the ratio of the geometric to the arithmetic mean of
// the magnitudes. Noise-like frames approach 1, tonal frames approach 0.
// A spectrum with no energy has flatness 0.
func (s Spectrum) Flatness() float64 {
	if len(s.Magnitude) == 0 {
		return 0
	}
	var logSum, sum float64
	for _, m := range s.Magnitude {
		logSum += math.Log(m + flatnessEp)
		sum += m
	}
	if sum <= 0 {
		return 0
	}
	n := float64(len(s.Magnitude))
	return math.Exp(logSum/n) / (sum/n + flatnessEp)
}
