//go:build nocgo
// +build nocgo

package audio

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync"
)

const nativeAudio = false

// OtoOutput stub for builds without cgo.
type OtoOutput struct{}

// NewOtoOutput always fails without cgo.
func NewOtoOutput(sr int, host *Host, buffer time.Duration) (*OtoOutput, error) {
	return nil, fmt.Errorf("%w: audio output not available in nocgo build", lipsync.ErrDeviceUnavailable)
}

func (o *OtoOutput) Write(p []byte) (int, error) { return 0, lipsync.ErrDeviceUnavailable }
func (o *OtoOutput) Reset() error                { return nil }
func (o *OtoOutput) SampleRate() int             { return 0 }
func (o *OtoOutput) Close() error                { return nil }
