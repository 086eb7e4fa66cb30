// Package smooth holds the per-channel exponential smoother for mouth
// parameters and the adaptive volume scale tracker.
package smooth

import "github.com/dgnsrekt/lipsync/lipsync/viseme"

// Default per-channel smoothing factors.
const (
	OpenAlpha  = 0.6
	FormAlpha  = 0.5
	SmileAlpha = 1.0
)

// State is the smoothed mouth shape.
type State struct {
	MouthOpen  float64
	MouthForm  float64
	MouthSmile float64
}

// Smoother applies s += alpha * (target - s) per channel.
type Smoother struct {
	OpenAlpha  float64
	FormAlpha  float64
	SmileAlpha float64

	state State
}

// NewSmoother returns a smoother with the default factors.
func NewSmoother() *Smoother {
	return &Smoother{
		OpenAlpha:  OpenAlpha,
		FormAlpha:  FormAlpha,
		SmileAlpha: SmileAlpha,
	}
}

// Step moves the state towards target and returns the new state.
func (s *Smoother) Step(target viseme.Target) State {
	s.state.MouthOpen += s.OpenAlpha * (target.MouthOpen - s.state.MouthOpen)
	s.state.MouthForm += s.FormAlpha * (target.MouthForm - s.state.MouthForm)
	s.state.MouthSmile += s.SmileAlpha * (target.MouthSmile - s.state.MouthSmile)
	return s.state
}

// State returns the current smoothed values.
func (s *Smoother) State() State {
	return s.state
}

// Reset zeroes the state.
func (s *Smoother) Reset() {
	s.state = State{}
}
