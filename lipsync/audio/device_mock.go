package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// DefaultMockBuffer is the amount of audio the mock output accepts ahead
// of real time.
const DefaultMockBuffer = 40 * time.Millisecond

// MockOutput is an OutputDevice that plays nothing. Writes are paced at the
// sample rate with a burst of one device buffer, and everything written is
// recorded for inspection.
type MockOutput struct {
	sr    int
	burst int

	mu      sync.Mutex
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	written bytes.Buffer
	writes  int
	resets  int
	lastAt  time.Time
}

// NewMockOutput creates a paced mock device. A non-positive buffer selects
// DefaultMockBuffer.
func NewMockOutput(sr int, buffer time.Duration) *MockOutput {
	if buffer <= 0 {
		buffer = DefaultMockBuffer
	}
	m := &MockOutput{
		sr:    sr,
		burst: max(SamplesFor(buffer, sr), 1),
	}
	m.rearm()
	log.Debug("Created mock audio output", "sample_rate", sr, "buffer", buffer)
	return m
}

// rearm installs a fresh limiter and context. Called with mu held or
// before the device is shared.
func (m *MockOutput) rearm() {
	m.limiter = rate.NewLimiter(rate.Limit(m.sr), m.burst)
	m.ctx, m.cancel = context.WithCancel(context.Background())
}

// Write paces p at the sample rate and records it.
func (m *MockOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, lipsync.ErrDeviceClosed
	}
	limiter, ctx := m.limiter, m.ctx
	m.mu.Unlock()

	samples := len(p) / BytesPerSample
	for samples > 0 {
		n := min(samples, m.burst)
		if err := limiter.WaitN(ctx, n); err != nil {
			return 0, m.interrupted(err)
		}
		samples -= n
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return 0, m.interrupted(ctx.Err())
	}
	m.written.Write(p)
	m.writes++
	m.lastAt = time.Now()
	return len(p), nil
}

func (m *MockOutput) interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return lipsync.ErrPlaybackCancelled
	}
	return fmt.Errorf("mock output: %w", err)
}

// Reset aborts blocked writes and drops the pacing backlog.
func (m *MockOutput) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	m.resets++
	if !m.closed {
		m.rearm()
	}
	return nil
}

// SampleRate returns the device rate.
func (m *MockOutput) SampleRate() int { return m.sr }

// Close aborts blocked writes and rejects new ones.
func (m *MockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancel()
	return nil
}

// Written returns a copy of everything written so far.
func (m *MockOutput) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

// SamplesWritten returns the number of samples written so far.
func (m *MockOutput) SamplesWritten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Len() / BytesPerSample
}

// Writes returns the number of completed writes.
func (m *MockOutput) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Resets returns how often Reset was called.
func (m *MockOutput) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// LastWrite returns the completion time of the latest write.
func (m *MockOutput) LastWrite() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAt
}

// MockInput is an InputDevice that replays a PCM buffer in real time, one
// frame per frame period, then keeps producing silence.
type MockInput struct {
	sr     int
	frame  int
	period time.Duration

	mu      sync.Mutex
	data    []byte
	next    time.Time
	pending error
	closed  bool
	reads   int
}

// NewMockInput creates a mock input replaying pcm in frames of
// frameSamples samples.
func NewMockInput(sr, frameSamples int, pcm []byte) *MockInput {
	return &MockInput{
		sr:     sr,
		frame:  frameSamples,
		period: Duration(frameSamples, sr),
		data:   bytes.Clone(pcm),
	}
}

// Feed appends pcm to the replay buffer.
func (m *MockInput) Feed(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, pcm...)
}

// InjectError makes the next Read return err.
func (m *MockInput) InjectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = err
}

// Read waits for the next frame period and returns one frame.
func (m *MockInput) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, lipsync.ErrDeviceClosed
	}
	now := time.Now()
	if m.next.IsZero() || m.next.Before(now.Add(-m.period)) {
		m.next = now
	}
	wait := m.next.Sub(now)
	m.next = m.next.Add(m.period)
	m.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, lipsync.ErrDeviceClosed
	}
	m.reads++
	if err := m.pending; err != nil {
		m.pending = nil
		return nil, err
	}

	out := make([]byte, m.frame*BytesPerSample)
	n := copy(out, m.data)
	m.data = m.data[n:]
	return out, nil
}

// SampleRate returns the device rate.
func (m *MockInput) SampleRate() int { return m.sr }

// Reads returns the number of frames handed out, including failed reads.
func (m *MockInput) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Close makes further reads fail.
func (m *MockInput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
