package ui

import (
	"time"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// FaceMsg carries one frame of face parameters.
type FaceMsg struct {
	Params lipsync.FaceParams
	At     time.Time
}

// PlaybackMsg reports the start or end of a playback session.
type PlaybackMsg struct {
	Playing bool
}

// DoneMsg is sent when the audio source has been played completely or has
// failed.
type DoneMsg struct {
	Err error
}

// statsTickMsg triggers a refresh of the engine statistics.
type statsTickMsg time.Time
