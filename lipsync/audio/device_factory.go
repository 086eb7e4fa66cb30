package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// NewOutputDevice opens an output device. The auto backend uses the mock
// when the platform has no usable audio and falls back to it when the
// system device cannot be opened. An explicit oto backend reports the
// failure instead.
func NewOutputDevice(backend string, sr int, buffer time.Duration) (OutputDevice, error) {
	switch strings.ToLower(backend) {
	case BackendMock:
		return NewMockOutput(sr, buffer), nil

	case BackendOto:
		dev, err := NewOtoOutput(sr, DetectHost(), buffer)
		if err != nil {
			return nil, err
		}
		return dev, nil

	case BackendAuto, "":
		host := DetectHost()
		if reason := host.OutputUnavailable(); reason != "" {
			log.Info("Using mock audio output", "reason", reason)
			return NewMockOutput(sr, buffer), nil
		}
		dev, err := NewOtoOutput(sr, host, buffer)
		if err != nil {
			log.Warn("Failed to open audio output, falling back to mock",
				"error", err,
				"host", host)
			return NewMockOutput(sr, buffer), nil
		}
		return dev, nil

	default:
		return nil, fmt.Errorf("%w: unknown audio backend %q", lipsync.ErrInvalidConfig, backend)
	}
}

// NewInputDevice opens a capture device producing frames of frameSamples
// samples. The oto backend captures through portaudio; auto behaves as for
// output and replays silence when no device is usable.
func NewInputDevice(backend string, sr, frameSamples int) (InputDevice, error) {
	switch strings.ToLower(backend) {
	case BackendMock:
		return NewMockInput(sr, frameSamples, nil), nil

	case BackendOto:
		dev, err := NewPortAudioInput(sr, frameSamples)
		if err != nil {
			return nil, err
		}
		return dev, nil

	case BackendAuto, "":
		if reason := DetectHost().InputUnavailable(); reason != "" {
			log.Info("Using mock audio input", "reason", reason)
			return NewMockInput(sr, frameSamples, nil), nil
		}
		dev, err := NewPortAudioInput(sr, frameSamples)
		if err != nil {
			log.Warn("Failed to open audio input, falling back to mock", "error", err)
			return NewMockInput(sr, frameSamples, nil), nil
		}
		return dev, nil

	default:
		return nil, fmt.Errorf("%w: unknown audio backend %q", lipsync.ErrInvalidConfig, backend)
	}
}
