package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return mm, cmd
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMeterTracksFrames(t *testing.T) {
	m := NewModel(Config{Title: "hello.wav"}, nil, nil)

	p := lipsync.FaceParams{MouthOpen: 0.7, MouthForm: -0.3, EyeBrowUp: 0.2}
	m, _ = update(t, m, PlaybackMsg{Playing: true})
	m, _ = update(t, m, FaceMsg{Params: p})

	if !m.Playing() {
		t.Error("meter should be playing")
	}
	if m.Face() != p {
		t.Errorf("face = %+v, want %+v", m.Face(), p)
	}
	if m.Frames() != 1 {
		t.Errorf("frames = %d, want 1", m.Frames())
	}

	view := m.View()
	for _, want := range []string{"hello.wav", "mouth open", "+0.70", "-0.30", "playing"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	// the end of a session closes the mouth on screen
	m, _ = update(t, m, PlaybackMsg{Playing: false})
	if m.Face() != (lipsync.FaceParams{}) {
		t.Errorf("face after end = %+v", m.Face())
	}
}

func TestMeterDone(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		err      error
		wantQuit bool
		wantText string
	}{
		{"stays open", Config{}, nil, false, "done"},
		{"exits", Config{ExitOnDone: true}, nil, true, "done"},
		{"error", Config{}, errors.New("decode failed"), false, "decode failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(tt.cfg, nil, nil)
			m, cmd := update(t, m, DoneMsg{Err: tt.err})
			if got := cmd != nil; got != tt.wantQuit {
				t.Errorf("quit command = %v, want %v", got, tt.wantQuit)
			}
			if !strings.Contains(m.View(), tt.wantText) {
				t.Errorf("view missing %q", tt.wantText)
			}
		})
	}
}

func TestMeterInterruptKeys(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	interrupt := func() {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}

	m := NewModel(Config{}, nil, interrupt)

	// nothing to interrupt while idle
	if _, cmd := update(t, m, key(" ")); cmd != nil {
		t.Error("space while idle should not return a command")
	}

	m, _ = update(t, m, PlaybackMsg{Playing: true})
	for _, k := range []string{" ", "i"} {
		_, cmd := update(t, m, key(k))
		if cmd == nil {
			t.Fatalf("key %q: expected interrupt command", k)
		}
		cmd()
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("interrupt called %d times, want 2", calls)
	}
}

func TestMeterQuit(t *testing.T) {
	m := NewModel(Config{}, nil, nil)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
}

func TestMeterCyclesEmotion(t *testing.T) {
	engine := lipsync.NewEngine(lipsync.DefaultEngineConfig())
	m := NewModel(Config{}, engine, nil)

	start, _ := engine.Emotion()
	m, _ = update(t, m, key("e"))
	next, intensity := engine.Emotion()
	if next == start {
		t.Errorf("emotion did not change from %v", start)
	}
	if intensity <= 0 {
		t.Errorf("intensity = %v, want positive", intensity)
	}

	for range len(emotion.All) - 1 {
		m, _ = update(t, m, key("e"))
	}
	if e, _ := engine.Emotion(); e != start {
		t.Errorf("after a full cycle emotion = %v, want %v", e, start)
	}
	if !strings.Contains(m.View(), "emotion "+start.String()) {
		t.Errorf("view does not show emotion %v", start)
	}
}

func TestMeterResizesBars(t *testing.T) {
	m := NewModel(Config{Width: 60}, nil, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 50, Height: 20})
	for i, b := range m.bars {
		if b.Width != 28 {
			t.Errorf("bar %d width = %d, want 28", i, b.Width)
		}
	}
}

func TestSinkForwardsFrames(t *testing.T) {
	var msgs []tea.Msg
	s := NewSink()

	// detached sinks drop frames
	if err := lipsync.Apply(s, lipsync.FaceParams{MouthOpen: 1}); err != nil {
		t.Fatal(err)
	}

	s.AttachFunc(func(msg tea.Msg) { msgs = append(msgs, msg) })
	p := lipsync.FaceParams{MouthOpen: 0.4, MouthForm: 0.1, MouthSmile: -0.2, EyeBrowUp: 0.3, EyeWide: -0.1}
	if err := lipsync.Apply(s, p); err != nil {
		t.Fatal(err)
	}
	cb := s.Callbacks()
	cb.OnPlaybackStarted()
	cb.OnPlaybackEnded()
	s.Done(nil)

	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	face, ok := msgs[0].(FaceMsg)
	if !ok || face.Params != p {
		t.Errorf("first message = %#v, want frame %+v", msgs[0], p)
	}
	if msgs[1] != (PlaybackMsg{Playing: true}) || msgs[2] != (PlaybackMsg{Playing: false}) {
		t.Errorf("playback messages = %#v, %#v", msgs[1], msgs[2])
	}
	if _, ok := msgs[3].(DoneMsg); !ok {
		t.Errorf("last message = %#v, want DoneMsg", msgs[3])
	}
}
