package ui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/lipsync/lipsync"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

// Sink is a lipsync.FaceSink that forwards complete frames to a running
// Bubble Tea program. Frames arriving before Attach are dropped.
type Sink struct {
	mu   sync.Mutex
	send func(tea.Msg)
	cur  lipsync.FaceParams
}

var _ lipsync.FaceSink = (*Sink)(nil)

// NewSink creates a detached sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach forwards frames to p.
func (s *Sink) Attach(p *tea.Program) {
	s.AttachFunc(p.Send)
}

// AttachFunc forwards frames to send.
func (s *Sink) AttachFunc(send func(tea.Msg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = send
}

func (s *Sink) SetAudioVolume(v float64) error { s.set(func(p *lipsync.FaceParams) { p.MouthOpen = v }); return nil }
func (s *Sink) SetMouthForm(v float64) error   { s.set(func(p *lipsync.FaceParams) { p.MouthForm = v }); return nil }
func (s *Sink) SetMouthSmile(v float64) error  { s.set(func(p *lipsync.FaceParams) { p.MouthSmile = v }); return nil }
func (s *Sink) SetEyeBrow(v float64) error     { s.set(func(p *lipsync.FaceParams) { p.EyeBrowUp = v }); return nil }

// SetEyeWide completes the frame and sends it.
func (s *Sink) SetEyeWide(v float64) error {
	s.mu.Lock()
	s.cur.EyeWide = v
	frame, send := s.cur, s.send
	s.mu.Unlock()

	if send != nil {
		send(FaceMsg{Params: frame, At: time.Now()})
	}
	return nil
}

func (s *Sink) set(fn func(*lipsync.FaceParams)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cur)
}

// Callbacks reports playback sessions to the program. The callbacks block
// until the program loop takes the message, so the model must never wait on
// the player from Update.
func (s *Sink) Callbacks() lsync.Callbacks {
	return lsync.Callbacks{
		OnPlaybackStarted: func() { s.post(PlaybackMsg{Playing: true}) },
		OnPlaybackEnded:   func() { s.post(PlaybackMsg{Playing: false}) },
	}
}

// Done tells the program that the audio source is finished.
func (s *Sink) Done(err error) {
	s.post(DoneMsg{Err: err})
}

func (s *Sink) post(msg tea.Msg) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		send(msg)
	}
}
