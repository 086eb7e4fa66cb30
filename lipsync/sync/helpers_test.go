package sync_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/lipsync/lipsync"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
	"github.com/dgnsrekt/lipsync/lipsync/synth"
)

const (
	rate  = 24000
	chunk = rate / 50 // 20 ms
)

// recorder is a face sink that keeps every frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames []lipsync.FaceParams
	times  []time.Time
}

func newRecorder() (*recorder, lipsync.FaceSink) {
	r := &recorder{}
	return r, lipsync.NewFuncSink(func(p lipsync.FaceParams) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = append(r.frames, p)
		r.times = append(r.times, time.Now())
		return nil
	})
}

func (r *recorder) Frames() []lipsync.FaceParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lipsync.FaceParams(nil), r.frames...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) Last() (lipsync.FaceParams, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return lipsync.FaceParams{}, time.Time{}
	}
	return r.frames[len(r.frames)-1], r.times[len(r.times)-1]
}

// Between counts the frames received from a to b inclusive.
func (r *recorder) Between(a, b time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, at := range r.times {
		if !at.Before(a) && !at.After(b) {
			n++
		}
	}
	return n
}

func (r *recorder) MaxOpen() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := 0.0
	for _, f := range r.frames {
		m = max(m, f.MouthOpen)
	}
	return m
}

// events counts playback callbacks and records when they fired.
type events struct {
	mu        sync.Mutex
	started   int
	ended     int
	startedAt time.Time
	endedAt   time.Time
	endCh     chan struct{}
}

func newEvents() *events {
	return &events{endCh: make(chan struct{}, 16)}
}

func (e *events) callbacks() lsync.Callbacks {
	return lsync.Callbacks{
		OnPlaybackStarted: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.started++
			e.startedAt = time.Now()
		},
		OnPlaybackEnded: func() {
			e.mu.Lock()
			e.ended++
			e.endedAt = time.Now()
			e.mu.Unlock()
			e.endCh <- struct{}{}
		},
	}
}

func (e *events) counts() (started, ended int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started, e.ended
}

func (e *events) startTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt
}

func (e *events) waitEnded(t *testing.T, timeout time.Duration) time.Time {
	t.Helper()
	select {
	case <-e.endCh:
	case <-time.After(timeout):
		t.Fatalf("playback did not end within %v", timeout)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endedAt
}

func testConfig() lipsync.SchedulerConfig {
	cfg := lipsync.DefaultSchedulerConfig()
	cfg.QueueTimeout = 20 * time.Millisecond
	return cfg
}

func newEngine() *lipsync.Engine {
	return lipsync.NewEngine(lipsync.DefaultEngineConfig())
}

// vowelPCM renders d of a synthetic vowel at the test rate.
func vowelPCM(t *testing.T, name string, d time.Duration) []byte {
	t.Helper()
	p, err := synth.Vowel(name)
	require.NoError(t, err)
	n := int(d * rate / time.Second)
	return synth.PCM16(synth.Tones(rate, n, 0, p...))
}

func silencePCM(d time.Duration) []byte {
	return synth.PCM16(synth.Silence(int(d * rate / time.Second)))
}
