package audio

import (
	"context"
	"errors"
)

// Backend names understood by the device factory.
const (
	BackendAuto = "auto"
	BackendOto  = "oto"
	BackendMock = "mock"
)

// ErrInputOverflow reports that the input device dropped samples because
// they were not read in time. Readers may ignore it.
var ErrInputOverflow = errors.New("audio input overflowed")

// OutputDevice plays mono 16-bit little-endian PCM.
type OutputDevice interface {
	// Write queues p for playback and blocks while the device buffer is
	// full, so successive writes proceed at the playback rate.
	Write(p []byte) (int, error)

	// Reset drops whatever is buffered and stops the sound at once.
	// Blocked writes return an error wrapping ErrPlaybackCancelled. The
	// device accepts new writes afterwards.
	Reset() error

	// SampleRate returns the device rate.
	SampleRate() int

	// Close releases the device.
	Close() error
}

// InputDevice captures mono 16-bit little-endian PCM in fixed frames.
type InputDevice interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) ([]byte, error)

	// SampleRate returns the device rate.
	SampleRate() int

	// Close releases the device.
	Close() error
}
