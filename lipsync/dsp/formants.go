package dsp

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/up-zero/gotool/mediautil"
	"gonum.org/v1/gonum/mat"
)

const (
	preEmphasisCoeff = 0.97

	// MinFormantFrame is the shortest frame formants are estimated for.
	MinFormantFrame = 256

	formantPeakRatio    = 0.15
	formantPeakDistance = 10

	F1Min, F1Max = 200.0, 1000.0
	F2Min, F2Max = 800.0, 3000.0
)

// Formants estimates the first two formant frequencies. It pre-emphasises
// the frame, takes a Hamming-windowed FFT, smooths the magnitude curve with
// an 11 point cubic Savitzky-Golay filter and picks the two strongest peaks
// above 15% of the maximum. It returns (0, 0) when the frame is too short
// or fewer than two peaks are found.
func Formants(samples []float64, sampleRate int) (f1, f2 float64) {
	n := len(samples)
	if n < MinFormantFrame || sampleRate <= 0 {
		return 0, 0
	}

	in := make([]float32, n)
	for i, s := range samples {
		in[i] = float32(s)
	}
	emphasized := mediautil.PreEmphasis(in, preEmphasisCoeff)

	win := hamming(n)
	nfft := nextPow2(n)
	buf := make([]complex128, nfft)
	for i := 0; i < n; i++ {
		buf[i] = complex(float64(emphasized[i])*float64(win[i]), 0)
	}
	spectrum := mediautil.FFT(buf)

	half := nfft / 2
	mag := make([]float64, half)
	for k := range mag {
		mag[k] = cmplx.Abs(spectrum[k])
	}
	smoothed := savitzkyGolay(mag)

	var top0 float64
	for _, v := range smoothed {
		top0 = math.Max(top0, v)
	}
	if top0 <= 0 {
		return 0, 0
	}

	peaks := findPeaks(smoothed, top0*formantPeakRatio, formantPeakDistance)
	if len(peaks) < 2 {
		return 0, 0
	}
	sort.Slice(peaks, func(i, j int) bool { return smoothed[peaks[i]] > smoothed[peaks[j]] })
	top := []int{peaks[0], peaks[1]}
	sort.Ints(top)

	binHz := float64(sampleRate) / float64(nfft)
	f1 = clamp(float64(top[0])*binHz, F1Min, F1Max)
	f2 = clamp(float64(top[1])*binHz, F2Min, F2Max)
	return f1, f2
}

// sgCoeffs are the 11 point, 3rd order Savitzky-Golay smoothing weights
// for the centre of the window (normalised by 429).
var sgCoeffs = [11]float64{-36, 9, 44, 69, 84, 89, 84, 69, 44, 9, -36}

const (
	sgWindow = 11
	sgHalf   = sgWindow / 2
	sgOrder  = 3
	sgNorm   = 429.0
)

// savitzkyGolay smooths x. Interior points use the fixed convolution
// weights. The first and last five points are evaluated on a cubic fitted
// to the edge window, so the curve keeps its length and edge shape.
func savitzkyGolay(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < sgWindow {
		copy(out, x)
		return out
	}
	for i := sgHalf; i < n-sgHalf; i++ {
		var acc float64
		for j, c := range sgCoeffs {
			acc += c * x[i-sgHalf+j]
		}
		out[i] = acc / sgNorm
	}

	head := polyFit(x[:sgWindow], sgOrder)
	tail := polyFit(x[n-sgWindow:], sgOrder)
	for i := 0; i < sgHalf; i++ {
		out[i] = polyEval(head, float64(i))
		out[n-sgHalf+i] = polyEval(tail, float64(sgWindow-sgHalf+i))
	}
	return out
}

// polyFit returns least-squares polynomial coefficients (lowest order
// first) for y sampled at x = 0, 1, ..., len(y)-1. A singular system
// yields all zeros.
func polyFit(y []float64, order int) []float64 {
	m := order + 1
	vander := mat.NewDense(len(y), m, nil)
	for i := range y {
		xi, pow := float64(i), 1.0
		for c := 0; c < m; c++ {
			vander.Set(i, c, pow)
			pow *= xi
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(vander, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return make([]float64, m)
	}
	return coef.RawVector().Data
}

func polyEval(coef []float64, x float64) float64 {
	var y float64
	for i := len(coef) - 1; i >= 0; i-- {
		y = y*x + coef[i]
	}
	return y
}

// findPeaks returns indices of local maxima strictly inside x whose value
// is at least minHeight. Flat tops report their middle sample. Peaks
// closer than minDistance to a taller kept peak are discarded.
func findPeaks(x []float64, minHeight float64, minDistance int) []int {
	var peaks []int
	n := len(x)
	for i := 1; i < n-1; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		// walk across a plateau
		j := i
		for j+1 < n-1 && x[j+1] == x[i] {
			j++
		}
		if x[j+1] < x[i] {
			if x[i] >= minHeight {
				peaks = append(peaks, (i+j)/2)
			}
			i = j
		}
	}
	if minDistance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[peaks[order[a]]] > x[peaks[order[b]]] })

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, idx := range order {
		if !keep[idx] {
			continue
		}
		for k := idx - 1; k >= 0 && peaks[idx]-peaks[k] < minDistance; k-- {
			keep[k] = false
		}
		for k := idx + 1; k < len(peaks) && peaks[k]-peaks[idx] < minDistance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
