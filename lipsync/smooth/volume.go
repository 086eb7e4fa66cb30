package smooth

import (
	"math"
	"slices"
)

// Volume tracker defaults.
const (
	HistorySize     = 100
	MinHistory      = 20
	InitialScale    = 2000.0
	MinScale        = 1000.0
	ScaleHeadroom   = 1.2
	ScalePercentile = 95.0
)

// VolumeTracker keeps the last HistorySize RMS values and derives an
// adaptive scale for "loud" speech from them. The scale never drops below
// MinScale.
type VolumeTracker struct {
	size       int
	minHistory int
	initial    float64

	history []float64
	next    int
	scale   float64
}

// NewVolumeTracker returns a tracker with the default sizes at InitialScale.
func NewVolumeTracker() *VolumeTracker {
	return NewVolumeTrackerSize(HistorySize, MinHistory, InitialScale)
}

// NewVolumeTrackerSize returns a tracker holding size values that adapts
// once minHistory values are present. Out of range arguments fall back to
// the defaults.
func NewVolumeTrackerSize(size, minHistory int, initialScale float64) *VolumeTracker {
	if size < 1 {
		size = HistorySize
	}
	if minHistory < 1 || minHistory > size {
		minHistory = min(MinHistory, size)
	}
	if initialScale < MinScale {
		initialScale = InitialScale
	}
	return &VolumeTracker{
		size:       size,
		minHistory: minHistory,
		initial:    initialScale,
		history:    make([]float64, 0, size),
		scale:      initialScale,
	}
}

// Observe records one RMS value and recomputes the scale once enough
// history has been collected. It returns the current scale.
func (v *VolumeTracker) Observe(rms float64) float64 {
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return v.scale
	}
	if len(v.history) < v.size {
		v.history = append(v.history, rms)
	} else {
		v.history[v.next] = rms
		v.next = (v.next + 1) % v.size
	}

	if len(v.history) >= v.minHistory {
		v.scale = math.Max(MinScale, Percentile(v.history, ScalePercentile)*ScaleHeadroom)
	}
	return v.scale
}

// Scale returns the current adaptive scale.
func (v *VolumeTracker) Scale() float64 {
	return v.scale
}

// Len returns the number of values in the history.
func (v *VolumeTracker) Len() int {
	return len(v.history)
}

// Reset clears the history and restores the initial scale.
func (v *VolumeTracker) Reset() {
	v.history = v.history[:0]
	v.next = 0
	v.scale = v.initial
}

// Percentile returns the p-th percentile of values, interpolating linearly
// between the closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
