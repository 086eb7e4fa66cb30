package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
)

// maxReadErrors is the number of consecutive failed reads after which the
// capture loop gives up.
const maxReadErrors = 10

// MicStats tracks capture activity.
type MicStats struct {
	InputChunks    int64 `json:"input_chunks"`
	Forwarded      int64 `json:"forwarded"`
	SilenceSkipped int64 `json:"silence_skipped"`
	MutedChunks    int64 `json:"muted_chunks"`
	Overflows      int64 `json:"overflows"`
	ReadErrors     int64 `json:"read_errors"`
	Recording      bool  `json:"recording"`
	Muted          bool  `json:"muted"`
}

// Mic reads fixed frames from an input device and forwards the voiced ones
// to onInput. Frames are dropped while recording is off or while playback
// has the mic muted. After a stretch of continuous silence, silent frames
// are dropped too.
type Mic struct {
	in          audio.InputDevice
	onInput     func([]byte)
	metrics     *observe.Metrics
	vad         float64
	silenceSkip time.Duration
	warnings    *lipsync.ThrottledLogger

	recording atomic.Bool

	mu          sync.Mutex
	muted       bool
	openAt      time.Time
	silentSince time.Time

	inputs     atomic.Int64
	forwarded  atomic.Int64
	skipped    atomic.Int64
	mutedCount atomic.Int64
	overflows  atomic.Int64
	readErrors atomic.Int64
}

// NewMic creates a mic on in. onInput receives every forwarded frame on
// the capture goroutine.
func NewMic(cfg lipsync.SchedulerConfig, in audio.InputDevice, onInput func([]byte), metrics *observe.Metrics) *Mic {
	if onInput == nil {
		onInput = func([]byte) {}
	}
	return &Mic{
		in:          in,
		onInput:     onInput,
		metrics:     metrics,
		vad:         cfg.VADThreshold,
		silenceSkip: cfg.SilenceSkipAfter,
		warnings:    lipsync.NewThrottledLogger(5*time.Second, 1),
	}
}

// StartRecording enables forwarding.
func (m *Mic) StartRecording() {
	if !m.recording.Swap(true) {
		log.Debug("Recording started")
	}
}

// StopRecording disables forwarding. Frames are still read and dropped.
func (m *Mic) StopRecording() {
	if m.recording.Swap(false) {
		log.Debug("Recording stopped")
	}
}

// Recording reports whether frames are being forwarded.
func (m *Mic) Recording() bool {
	return m.recording.Load()
}

// Mute closes the gate until UnmuteAfter.
func (m *Mic) Mute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = true
}

// UnmuteAfter opens the gate once d has passed.
func (m *Mic) UnmuteAfter(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = false
	m.openAt = time.Now().Add(d)
}

// Muted reports whether the gate is closed at now.
func (m *Mic) Muted(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted || now.Before(m.openAt)
}

// Run captures until ctx is done or the device fails repeatedly.
func (m *Mic) Run(ctx context.Context) error {
	failures := 0
	for {
		frame, err := m.in.Read(ctx)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, audio.ErrInputOverflow):
			m.overflows.Add(1)
			if frame == nil {
				continue
			}
		case errors.Is(err, lipsync.ErrDeviceClosed):
			return nil
		default:
			m.readErrors.Add(1)
			failures++
			if failures >= maxReadErrors {
				return fmt.Errorf("mic read failed %d times: %w", failures, err)
			}
			m.warnings.Warn("Mic read failed", "error", err)
			continue
		}

		m.handle(frame, time.Now())
	}
}

// handle gates one frame and forwards it if it passes.
func (m *Mic) handle(frame []byte, now time.Time) {
	m.inputs.Add(1)
	if !m.recording.Load() {
		return
	}

	ctx := context.Background()
	if m.Muted(now) {
		m.mutedCount.Add(1)
		m.metrics.RecordMicFrame(ctx, "muted")
		return
	}

	if m.silent(frame, now) {
		m.skipped.Add(1)
		m.metrics.RecordMicFrame(ctx, "silent")
		return
	}

	m.forwarded.Add(1)
	m.metrics.RecordMicFrame(ctx, "forwarded")
	m.onInput(frame)
}

// silent reports whether frame should be dropped as part of a long
// silence.
func (m *Mic) silent(frame []byte, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if audio.Level(audio.BytesToInt16(frame)) >= m.vad {
		m.silentSince = time.Time{}
		return false
	}
	if m.silentSince.IsZero() {
		m.silentSince = now
	}
	return now.Sub(m.silentSince) >= m.silenceSkip
}

// Stats returns capture statistics.
func (m *Mic) Stats() MicStats {
	return MicStats{
		InputChunks:    m.inputs.Load(),
		Forwarded:      m.forwarded.Load(),
		SilenceSkipped: m.skipped.Load(),
		MutedChunks:    m.mutedCount.Load(),
		Overflows:      m.overflows.Load(),
		ReadErrors:     m.readErrors.Load(),
		Recording:      m.recording.Load(),
		Muted:          m.Muted(time.Now()),
	}
}

// Close releases the input device.
func (m *Mic) Close() error {
	return m.in.Close()
}
