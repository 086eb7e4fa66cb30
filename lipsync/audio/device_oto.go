//go:build !nocgo
// +build !nocgo

package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// nativeAudio reports whether the oto and portaudio backends are built in.
const nativeAudio = true

// oto allows one context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(sr int, host *Host, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoCtx, otoErr = newOtoContextWithRetry(sr, host, buffer)
		otoRate = sr
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sr {
		return nil, fmt.Errorf("%w: audio context already runs at %d Hz, %d Hz requested",
			lipsync.ErrDeviceUnavailable, otoRate, sr)
	}
	return otoCtx, nil
}

// newOtoContextWithRetry creates the oto context with platform-specific
// retry logic.
func newOtoContextWithRetry(sr int, host *Host, buffer time.Duration) (*oto.Context, error) {
	maxRetries := 1
	retryDelay := 100 * time.Millisecond
	readyTimeout := 5 * time.Second

	switch host.Server {
	case ServerCoreAudio:
		// CoreAudio can race during initialization
		maxRetries = 3
		retryDelay = 200 * time.Millisecond
		readyTimeout = 10 * time.Second
	case ServerWASAPI:
		maxRetries = 2
		retryDelay = 150 * time.Millisecond
	case ServerPulse:
		maxRetries = 2
	}
	if buffer <= 0 {
		buffer = host.OutputBuffer()
	}

	options := &oto.NewContextOptions{
		SampleRate:   sr,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			log.Debug("Retrying audio context initialization", "attempt", i+1, "of", maxRetries)
			time.Sleep(retryDelay)
		}

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			lastErr = err
			log.Debug("Audio context initialization failed", "attempt", i+1, "error", err)
			continue
		}
		select {
		case <-ready:
			log.Debug("Audio output context ready",
				"host", host,
				"sample_rate", sr,
				"buffer_size", buffer)
			return ctx, nil
		case <-time.After(readyTimeout):
			lastErr = fmt.Errorf("initialization timeout after %v", readyTimeout)
		}
	}

	return nil, fmt.Errorf("%w: after %d attempts: %w", lipsync.ErrDeviceUnavailable, maxRetries, lastErr)
}

// OtoOutput plays through the system audio device. Writes go into a pipe
// that an oto player drains at the device rate, so Write blocks for as
// long as the device is behind.
type OtoOutput struct {
	ctx *oto.Context
	sr  int

	mu     sync.Mutex
	pw     *io.PipeWriter
	player *oto.Player
	closed bool
}

// NewOtoOutput opens the system output device at rate sr.
func NewOtoOutput(sr int, host *Host, buffer time.Duration) (*OtoOutput, error) {
	ctx, err := otoContext(sr, host, buffer)
	if err != nil {
		return nil, err
	}
	o := &OtoOutput{ctx: ctx, sr: sr}
	o.open()
	return o, nil
}

// open starts a fresh player. Called with mu held or before sharing.
func (o *OtoOutput) open() {
	pr, pw := io.Pipe()
	player := o.ctx.NewPlayer(pr)
	// keep the read-ahead near two 20 ms chunks
	player.SetBufferSize(2 * SamplesFor(20*time.Millisecond, o.sr) * BytesPerSample)
	player.Play()
	o.pw, o.player = pw, player
}

// Write blocks until the player has taken p.
func (o *OtoOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, lipsync.ErrDeviceClosed
	}
	pw := o.pw
	o.mu.Unlock()

	n, err := pw.Write(p)
	if errors.Is(err, io.ErrClosedPipe) {
		return n, lipsync.ErrPlaybackCancelled
	}
	return n, err
}

// Reset silences the device and starts a new player for later writes.
func (o *OtoOutput) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return lipsync.ErrDeviceClosed
	}
	err := o.stop()
	o.open()
	return err
}

func (o *OtoOutput) stop() error {
	o.player.Pause()
	_ = o.pw.CloseWithError(io.ErrClosedPipe)
	return o.player.Close()
}

// SampleRate returns the device rate.
func (o *OtoOutput) SampleRate() int { return o.sr }

// Close stops playback. The process-wide context stays alive.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.stop()
}
