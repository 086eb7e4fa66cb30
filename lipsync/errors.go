package lipsync

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for the lip-sync system.
var (
	// Device errors
	ErrDeviceUnavailable = errors.New("audio device is not available")
	ErrDeviceClosed      = errors.New("audio device is closed")

	// Decoding errors
	ErrDecodeFailed       = errors.New("audio decoding failed")
	ErrInvalidAudioFormat = errors.New("invalid audio format")
	ErrEmptyAudio         = errors.New("no audio data")

	// Player errors
	ErrPlayerClosed      = errors.New("player has been closed")
	ErrPlayerNotStarted  = errors.New("player not started")
	ErrAlreadyStarted    = errors.New("player already started")
	ErrPlaybackCancelled = errors.New("playback was interrupted")

	// Queue errors
	ErrQueueClosed = errors.New("audio queue is closed")
	ErrQueueFull   = errors.New("audio queue is full")

	// Label errors
	ErrUnknownEmotion = errors.New("unknown emotion")
	ErrUnknownViseme  = errors.New("unknown viseme")

	// Configuration errors
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// Sink errors
	ErrSinkFailed = errors.New("face sink rejected update")
)

// IsRecoverableError checks if an error is recoverable.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	// Non-recoverable errors
	for _, fatal := range []error{
		ErrDeviceUnavailable,
		ErrPlayerClosed,
		ErrInvalidConfig,
		ErrInvalidSampleRate,
	} {
		if errors.Is(err, fatal) {
			return false
		}
	}

	// Most errors are recoverable
	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for warnings that don't prevent operation.
	SeverityWarning
	// SeverityError is for errors that prevent normal operation.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// LipSyncError provides detailed error information.
type LipSyncError struct {
	Err       error          // The underlying error
	Component string         // Component that generated the error
	Action    string         // Action being performed when error occurred
	Severity  ErrorSeverity  // Severity of the error
	Timestamp time.Time      // When the error occurred
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *LipSyncError) Error() string {
	if e.Err == nil {
		return "unknown lip-sync error"
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Component, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *LipSyncError) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *LipSyncError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewError creates a new lip-sync error with context.
func NewError(err error, component, action string) *LipSyncError {
	return &LipSyncError{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  SeverityError,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
}

// WithSeverity sets the error severity.
func (e *LipSyncError) WithSeverity(severity ErrorSeverity) *LipSyncError {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *LipSyncError) WithContext(key string, value any) *LipSyncError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
