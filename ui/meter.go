// Package ui renders face parameters as a live terminal meter.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
)

const labelWidth = 12

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Width(labelWidth).Foreground(lipgloss.Color("#AAAAAA"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

// channel is one meter row.
type channel struct {
	label   string
	value   func(lipsync.FaceParams) float64
	bipolar bool
}

var channels = []channel{
	{"mouth open", func(p lipsync.FaceParams) float64 { return p.MouthOpen }, false},
	{"mouth form", func(p lipsync.FaceParams) float64 { return p.MouthForm }, true},
	{"smile", func(p lipsync.FaceParams) float64 { return p.MouthSmile }, true},
	{"eyebrow", func(p lipsync.FaceParams) float64 { return p.EyeBrowUp }, true},
	{"eye wide", func(p lipsync.FaceParams) float64 { return p.EyeWide }, true},
}

// Model is the Bubble Tea model of the face meter.
type Model struct {
	cfg       Config
	engine    *lipsync.Engine
	interrupt func()

	bars    []progress.Model
	face    lipsync.FaceParams
	frames  int
	playing bool
	stats   lipsync.PerformanceStats
	done    bool
	err     error
}

// NewModel creates a meter. engine may be nil, which hides the statistics
// and disables emotion cycling. interrupt is called, off the program loop,
// when the user stops playback.
func NewModel(cfg Config, engine *lipsync.Engine, interrupt func()) Model {
	if cfg.Width <= 0 {
		cfg.Width = 40
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 250 * time.Millisecond
	}
	m := Model{cfg: cfg, engine: engine, interrupt: interrupt}
	for range channels {
		m.bars = append(m.bars, progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(cfg.Width),
			progress.WithoutPercentage(),
		))
	}
	return m
}

// NewProgram creates a Bubble Tea program running the meter.
func NewProgram(m Model) *tea.Program {
	var opts []tea.ProgramOption
	if m.cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(m, opts...)
}

func (m Model) Init() tea.Cmd {
	return m.statsTick()
}

func (m Model) statsTick() tea.Cmd {
	return tea.Tick(m.cfg.StatsInterval, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		w := max(min(msg.Width-labelWidth-10, m.cfg.Width), 10)
		for i := range m.bars {
			m.bars[i].Width = w
		}

	case FaceMsg:
		m.face = msg.Params
		m.frames++

	case PlaybackMsg:
		m.playing = msg.Playing
		if !msg.Playing {
			m.face = lipsync.FaceParams{}
		}

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.playing = false
		if m.cfg.ExitOnDone {
			return m, tea.Quit
		}

	case statsTickMsg:
		if m.engine != nil {
			m.stats = m.engine.PerformanceStats()
		}
		return m, m.statsTick()
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "esc", "ctrl+c":
		return m, tea.Sequence(m.stop(), tea.Quit)
	case " ", "i":
		return m, m.stop()
	case "e":
		m.cycleEmotion()
	}
	return m, nil
}

// stop runs the interrupt in a command so Update never waits on the player.
func (m Model) stop() tea.Cmd {
	if m.interrupt == nil || !m.playing {
		return nil
	}
	return func() tea.Msg {
		m.interrupt()
		return nil
	}
}

func (m *Model) cycleEmotion() {
	if m.engine == nil {
		return
	}
	cur, intensity := m.engine.Emotion()
	next := emotion.All[(slices.Index(emotion.All, cur)+1)%len(emotion.All)]
	if intensity == 0 {
		intensity = 0.5
	}
	m.engine.SetEmotion(next, intensity)
	m.stats.CurrentEmotion = next.String()
	m.stats.EmotionIntensity = intensity
}

// Face returns the frame on display.
func (m Model) Face() lipsync.FaceParams { return m.face }

// Frames returns the number of frames received.
func (m Model) Frames() int { return m.frames }

// Playing reports whether a session is in progress.
func (m Model) Playing() bool { return m.playing }

func (m Model) View() string {
	var b strings.Builder

	if m.cfg.Title != "" {
		b.WriteString(titleStyle.Render(m.cfg.Title))
		b.WriteString("\n")
	}
	b.WriteString(m.status())
	b.WriteString("\n\n")

	for i, ch := range channels {
		v := ch.value(m.face)
		fill := v
		if ch.bipolar {
			fill = (v + 1) / 2
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			labelStyle.Render(ch.label),
			m.bars[i].ViewAs(fill),
			valueStyle.Render(fmt.Sprintf("%+.2f", v)))
	}

	if m.engine != nil {
		b.WriteString("\n")
		b.WriteString(valueStyle.Render(fmt.Sprintf("viseme %s · emotion %s %.2f · %.1f fps · scale %.0f",
			m.stats.CurrentViseme, m.stats.CurrentEmotion, m.stats.EmotionIntensity,
			m.stats.AvgFPS, m.stats.AdaptiveScale)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space: interrupt · e: next emotion · q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return errorStyle.Render("✗ " + m.err.Error())
	case m.playing:
		return playingStyle.Render(fmt.Sprintf("▶ playing  %d frames", m.frames))
	case m.done:
		return idleStyle.Render(fmt.Sprintf("■ done  %d frames", m.frames))
	default:
		return idleStyle.Render("■ idle")
	}
}
