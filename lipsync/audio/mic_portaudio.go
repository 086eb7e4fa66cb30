//go:build !nocgo
// +build !nocgo

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// PortAudioInput captures from the default input device.
type PortAudioInput struct {
	sr      int
	closing atomic.Bool

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

// NewPortAudioInput opens the default input stream as mono 16-bit PCM in
// frames of frameSamples samples.
func NewPortAudioInput(sr, frameSamples int) (*PortAudioInput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio: %w", lipsync.ErrDeviceUnavailable, err)
	}

	in := &PortAudioInput{sr: sr, buf: make([]int16, frameSamples)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sr), frameSamples, in.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input stream: %w", lipsync.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input stream: %w", lipsync.ErrDeviceUnavailable, err)
	}

	in.stream = stream
	log.Debug("Audio input opened", "sample_rate", sr, "frame", frameSamples)
	return in, nil
}

// Read blocks for one frame. Overflows still return the frame together
// with ErrInputOverflow.
func (p *PortAudioInput) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, lipsync.ErrDeviceClosed
	}

	err := p.stream.Read()
	frame := Int16ToBytes(p.buf)
	if errors.Is(err, portaudio.InputOverflowed) {
		return frame, ErrInputOverflow
	}
	if err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	return frame, nil
}

// SampleRate returns the device rate.
func (p *PortAudioInput) SampleRate() int { return p.sr }

// Close stops the stream and releases portaudio.
func (p *PortAudioInput) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	// Abort unblocks a pending Read before the lock is taken.
	abortErr := p.stream.Abort()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return errors.Join(abortErr, p.stream.Close(), portaudio.Terminate())
}
