//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// PortAudioInput stub for builds without cgo.
type PortAudioInput struct{}

// NewPortAudioInput always fails without cgo.
func NewPortAudioInput(sr, frameSamples int) (*PortAudioInput, error) {
	return nil, fmt.Errorf("%w: audio input not available in nocgo build", lipsync.ErrDeviceUnavailable)
}

func (p *PortAudioInput) Read(ctx context.Context) ([]byte, error) {
	return nil, lipsync.ErrDeviceUnavailable
}
func (p *PortAudioInput) SampleRate() int { return 0 }
func (p *PortAudioInput) Close() error    { return nil }
