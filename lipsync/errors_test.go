package lipsync

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestIsRecoverableError tests error recovery classification.
func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"device unavailable", ErrDeviceUnavailable, false},
		{"player closed", ErrPlayerClosed, false},
		{"invalid config", ErrInvalidConfig, false},
		{"wrapped sample rate", fmt.Errorf("engine config: %w", ErrInvalidSampleRate), false},
		{"decode failed", ErrDecodeFailed, true},
		{"sink failed", ErrSinkFailed, true},
		{"queue full", ErrQueueFull, true},
		{"other", errors.New("something"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverableError(tt.err); got != tt.want {
				t.Errorf("IsRecoverableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestLipSyncError tests the detailed error type.
func TestLipSyncError(t *testing.T) {
	err := NewError(ErrDecodeFailed, "decoder", "read header").
		WithSeverity(SeverityWarning).
		WithContext("format", "wav")

	if got := err.Error(); got != "decoder read header: audio decoding failed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrDecodeFailed) {
		t.Error("errors.Is should see the wrapped error")
	}
	if !err.IsRecoverable() {
		t.Error("decode failures are recoverable")
	}
	if err.Severity != SeverityWarning || err.Severity.String() != "warning" {
		t.Errorf("Severity = %v", err.Severity)
	}
	if err.Context["format"] != "wav" {
		t.Errorf("Context = %v", err.Context)
	}
	if err.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}

	var target *LipSyncError
	wrapped := fmt.Errorf("playback: %w", NewError(ErrDeviceUnavailable, "device", ""))
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find the LipSyncError")
	}
	if target.IsRecoverable() {
		t.Error("device loss is not recoverable")
	}
	if got := target.Error(); got != "device: audio device is not available" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLipSyncErrorZeroValue(t *testing.T) {
	var e LipSyncError
	if !strings.Contains(e.Error(), "unknown") {
		t.Errorf("Error() = %q", e.Error())
	}
	e.WithContext("k", 1)
	if e.Context["k"] != 1 {
		t.Error("WithContext should allocate the map")
	}
	if got := ErrorSeverity(9).String(); got != "severity(9)" {
		t.Errorf("String() = %q", got)
	}
}
