package audio

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Server is the sound server oto and portaudio end up talking to.
type Server string

const (
	ServerPulse     Server = "pulse" // PulseAudio or pipewire-pulse
	ServerALSA      Server = "alsa"
	ServerCoreAudio Server = "coreaudio"
	ServerWASAPI    Server = "wasapi"
	ServerNone      Server = "none"
)

// Host describes the audio endpoints reachable on this machine. Playback
// goes through oto and capture through portaudio, so each direction is
// checked on its own: a headless box with a loopback sink can play but
// not listen.
type Host struct {
	OS      string
	Server  Server
	Sinks   int
	Sources int
	// Forced holds why mock audio was requested, if it was.
	Forced string
}

// mockRequested reports why the environment asks for mock audio.
func mockRequested() string {
	if os.Getenv("LIPSYNC_MOCK_AUDIO") == "true" {
		return "LIPSYNC_MOCK_AUDIO"
	}
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE"} {
		if val := os.Getenv(v); val != "" && val != "false" {
			return "CI environment"
		}
	}
	return ""
}

// DetectHost inspects the machine for the output and input backends.
func DetectHost() *Host {
	h := &Host{OS: runtime.GOOS, Forced: mockRequested()}

	switch h.OS {
	case "linux":
		h.Server, h.Sinks, h.Sources = linuxEndpoints()
	case "darwin":
		h.Server, h.Sinks, h.Sources = ServerCoreAudio, 1, 1
	case "windows":
		h.Server, h.Sinks, h.Sources = ServerWASAPI, 1, 1
	default:
		h.Server = ServerNone
	}

	log.Debug("Audio host detected",
		"os", h.OS,
		"server", h.Server,
		"sinks", h.Sinks,
		"sources", h.Sources,
		"forced_mock", h.Forced)
	return h
}

// linuxEndpoints prefers the sound server's view and falls back to the
// raw ALSA device nodes.
func linuxEndpoints() (Server, int, int) {
	if _, err := exec.LookPath("pactl"); err == nil {
		sinks, err1 := exec.Command("pactl", "list", "short", "sinks").Output()
		sources, err2 := exec.Command("pactl", "list", "short", "sources").Output()
		if err1 == nil && err2 == nil {
			return ServerPulse, countPulse(string(sinks)), countPulse(string(sources))
		}
	}

	entries, err := os.ReadDir("/dev/snd")
	if err != nil {
		return ServerNone, 0, 0
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sinks, sources := countALSA(names)
	return ServerALSA, sinks, sources
}

// countPulse counts the endpoints in `pactl list short` output. Monitor
// sources only echo a sink and cannot hear a user.
func countPulse(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasSuffix(fields[1], ".monitor") {
			continue
		}
		n++
	}
	return n
}

// countALSA counts PCM device nodes such as pcmC0D0p (playback) and
// pcmC0D0c (capture).
func countALSA(names []string) (sinks, sources int) {
	for _, name := range names {
		if !strings.HasPrefix(name, "pcmC") {
			continue
		}
		switch name[len(name)-1] {
		case 'p':
			sinks++
		case 'c':
			sources++
		}
	}
	return sinks, sources
}

// OutputUnavailable returns why oto cannot play on this host, or "" when
// it can.
func (h *Host) OutputUnavailable() string {
	switch {
	case h.Forced != "":
		return h.Forced
	case !nativeAudio:
		return "built without cgo"
	case h.Server == ServerNone:
		return "no sound server"
	case h.Sinks == 0:
		return "no playback device"
	default:
		return ""
	}
}

// InputUnavailable returns why portaudio cannot capture on this host, or
// "" when it can.
func (h *Host) InputUnavailable() string {
	switch {
	case h.Forced != "":
		return h.Forced
	case !nativeAudio:
		return "built without cgo"
	case h.Server == ServerNone:
		return "no sound server"
	case h.Sources == 0:
		return "no capture device"
	default:
		return ""
	}
}

// OutputBuffer is the oto buffer used when none is configured. It never
// drops below two 20 ms chunks so the device does not starve between
// writes.
func (h *Host) OutputBuffer() time.Duration {
	switch h.Server {
	case ServerCoreAudio:
		return 100 * time.Millisecond
	case ServerWASAPI:
		return 80 * time.Millisecond
	case ServerPulse:
		return 60 * time.Millisecond
	default:
		return 40 * time.Millisecond
	}
}

func (h *Host) String() string {
	return fmt.Sprintf("%s/%s (%d out, %d in)", h.OS, h.Server, h.Sinks, h.Sources)
}
