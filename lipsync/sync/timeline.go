package sync

import (
	"sync"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync/audio"
)

// Timeline is audio whose playback started at a known time.
type Timeline interface {
	// Window returns the samples to analyse at pos, counted in samples
	// since the playback start. It reports false when there is nothing to
	// analyse.
	Window(pos int64) ([]int16, bool)

	// Start returns the playback start and whether playback has started.
	Start() (time.Time, bool)

	// SampleRate returns the timeline rate.
	SampleRate() int
}

// Cursor maps wall-clock time to a timeline position a fixed delay behind
// playback.
type Cursor struct {
	Start      time.Time
	SampleRate int
	Delay      time.Duration
}

// Position returns the sample position at now, never negative.
func (c Cursor) Position(now time.Time) int64 {
	elapsed := now.Sub(c.Start) - c.Delay
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed) * int64(c.SampleRate) / int64(time.Second)
}

// RingTimeline reads the sliding ring of a realtime player. Each window
// is exactly one chunk.
type RingTimeline struct {
	ring *audio.Ring
	sr   int
}

// NewRingTimeline wraps ring holding audio at rate sr.
func NewRingTimeline(ring *audio.Ring, sr int) *RingTimeline {
	return &RingTimeline{ring: ring, sr: sr}
}

// Window returns the ring chunk playing at pos.
func (t *RingTimeline) Window(pos int64) ([]int16, bool) { return t.ring.ChunkAt(pos) }

// Start returns the time the first chunk in the ring started playing.
func (t *RingTimeline) Start() (time.Time, bool) { return t.ring.Start() }

// SampleRate returns the ring rate.
func (t *RingTimeline) SampleRate() int { return t.sr }

// SegmentTimeline holds one fully decoded segment. Windows are centred on
// the position and span one tick at rate ticks per second.
type SegmentTimeline struct {
	samples []int16
	sr      int
	half    int

	mu    sync.Mutex
	start time.Time
}

// NewSegmentTimeline creates a timeline over mono samples at rate sr,
// analysed tickRate times per second.
func NewSegmentTimeline(samples []int16, sr int, tickRate float64) *SegmentTimeline {
	if tickRate <= 0 {
		tickRate = 60
	}
	return &SegmentTimeline{
		samples: samples,
		sr:      sr,
		half:    max(int(float64(sr)/tickRate/2), 1),
	}
}

// MarkStart records the playback start.
func (t *SegmentTimeline) MarkStart(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = at
}

// Start returns the playback start.
func (t *SegmentTimeline) Start() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start, !t.start.IsZero()
}

// Window returns the samples within half a tick of pos, clipped to the
// segment. It reports false once pos is past the end.
func (t *SegmentTimeline) Window(pos int64) ([]int16, bool) {
	n := int64(len(t.samples))
	if pos < 0 || pos >= n {
		return nil, false
	}
	lo := max(pos-int64(t.half), 0)
	hi := min(pos+int64(t.half), n)
	return t.samples[lo:hi:hi], true
}

// SampleRate returns the segment rate.
func (t *SegmentTimeline) SampleRate() int { return t.sr }

// Len returns the segment length in samples.
func (t *SegmentTimeline) Len() int { return len(t.samples) }

// Duration returns the segment playing time.
func (t *SegmentTimeline) Duration() time.Duration {
	return audio.Duration(len(t.samples), t.sr)
}
