package lipsync

import (
	"errors"
	"fmt"
	"math"
)

// FaceParams is the per-frame output of the engine.
type FaceParams struct {
	MouthOpen  float64 `json:"mouth_open"`
	MouthForm  float64 `json:"mouth_form"`
	MouthSmile float64 `json:"mouth_smile"`
	EyeBrowUp  float64 `json:"eye_brow_up"`
	EyeWide    float64 `json:"eye_wide"`
}

// Clamp limits every channel to its valid range and replaces non-finite
// values with 0.
func (p FaceParams) Clamp() FaceParams {
	return FaceParams{
		MouthOpen:  clampFinite(p.MouthOpen, 0, 1),
		MouthForm:  clampFinite(p.MouthForm, -1, 1),
		MouthSmile: clampFinite(p.MouthSmile, -1, 1),
		EyeBrowUp:  clampFinite(p.EyeBrowUp, -1, 1),
		EyeWide:    clampFinite(p.EyeWide, -1, 1),
	}
}

// Valid reports whether every channel is finite and within range.
func (p FaceParams) Valid() bool {
	return p == p.Clamp()
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// FaceSink receives face parameters. Each setter takes one channel.
type FaceSink interface {
	SetAudioVolume(mouthOpen float64) error
	SetMouthForm(v float64) error
	SetMouthSmile(v float64) error
	SetEyeBrow(v float64) error
	SetEyeWide(v float64) error
}

// Apply pushes p to sink channel by channel. A panicking sink is reported
// as an error wrapping ErrSinkFailed; every setter is still attempted.
func Apply(sink FaceSink, p FaceParams) error {
	errs := []error{
		set(sink.SetAudioVolume, p.MouthOpen),
		set(sink.SetMouthForm, p.MouthForm),
		set(sink.SetMouthSmile, p.MouthSmile),
		set(sink.SetEyeBrow, p.EyeBrowUp),
		set(sink.SetEyeWide, p.EyeWide),
	}
	if e := errors.Join(errs...); e != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, e)
	}
	return nil
}

// set calls one setter, turning a panic into an error.
func set(setter func(float64) error, v float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return setter(v)
}

// SinkFunc adapts a function taking the whole parameter set to a FaceSink.
// Channels arrive one at a time, so the function is called once per frame,
// after SetEyeWide.
type SinkFunc func(FaceParams) error

// funcSink buffers channels until the frame is complete.
type funcSink struct {
	fn  SinkFunc
	cur FaceParams
}

// NewFuncSink returns a FaceSink that calls fn with each complete frame.
func NewFuncSink(fn SinkFunc) FaceSink {
	return &funcSink{fn: fn}
}

func (s *funcSink) SetAudioVolume(v float64) error { s.cur.MouthOpen = v; return nil }
func (s *funcSink) SetMouthForm(v float64) error   { s.cur.MouthForm = v; return nil }
func (s *funcSink) SetMouthSmile(v float64) error  { s.cur.MouthSmile = v; return nil }
func (s *funcSink) SetEyeBrow(v float64) error     { s.cur.EyeBrowUp = v; return nil }
func (s *funcSink) SetEyeWide(v float64) error {
	s.cur.EyeWide = v
	return s.fn(s.cur)
}

// DiscardSink accepts and ignores every update.
var DiscardSink FaceSink = discardSink{}

type discardSink struct{}

func (discardSink) SetAudioVolume(float64) error { return nil }
func (discardSink) SetMouthForm(float64) error   { return nil }
func (discardSink) SetMouthSmile(float64) error  { return nil }
func (discardSink) SetEyeBrow(float64) error     { return nil }
func (discardSink) SetEyeWide(float64) error     { return nil }
