package emotion

import (
	"time"

	"github.com/dgnsrekt/lipsync/lipsync/viseme"
)

// Infer guesses an emotion from pitch, loudness and speaking rate. scale is
// the adaptive volume scale that rms is compared against. rate is relative
// to a nominal speaking rate of 1.0. Unvoiced frames (f0 == 0) are neutral.
func Infer(f0, rms, rate, scale float64) Emotion {
	if f0 <= 0 {
		return Neutral
	}
	switch {
	case f0 > 250 && rms > 0.6*scale:
		return Surprised
	case f0 > 200 && rate > 1.2:
		return Happy
	case f0 < 150 && rms > 0.5*scale:
		return Angry
	case f0 < 150 && rms < 0.3*scale:
		return Sad
	default:
		return Neutral
	}
}

// Speaking rate window and nominal viseme changes per second.
const (
	RateWindow  = time.Second
	NominalRate = 6.0
)

// RateEstimator counts viseme changes between voiced frames over a sliding
// window. It is not safe for concurrent use.
type RateEstimator struct {
	last        viseme.Viseme
	haveLast    bool
	transitions []time.Time
}

// Observe records the viseme of a frame analysed at time at.
func (r *RateEstimator) Observe(v viseme.Viseme, at time.Time) {
	r.expire(at)
	if v == viseme.Silence {
		return
	}
	if r.haveLast && v != r.last {
		r.transitions = append(r.transitions, at)
	}
	r.last, r.haveLast = v, true
}

// Rate returns the change rate at time now relative to NominalRate.
func (r *RateEstimator) Rate(now time.Time) float64 {
	r.expire(now)
	return float64(len(r.transitions)) / (NominalRate * RateWindow.Seconds())
}

// Reset forgets all history.
func (r *RateEstimator) Reset() {
	*r = RateEstimator{transitions: r.transitions[:0]}
}

func (r *RateEstimator) expire(now time.Time) {
	cut := now.Add(-RateWindow)
	i := 0
	for i < len(r.transitions) && !r.transitions[i].After(cut) {
		i++
	}
	if i > 0 {
		r.transitions = append(r.transitions[:0], r.transitions[i:]...)
	}
}
