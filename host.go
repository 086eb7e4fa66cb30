package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/lipsync/internal/lifecycle"
	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

// host holds what every playback command needs: the lifecycle manager,
// optional metrics and the engine.
type host struct {
	manager  *lifecycle.Manager
	provider *observe.Provider
	metrics  *observe.Metrics
	engine   *lipsync.Engine
	monitor  *lifecycle.ResourceMonitor
}

// newHost starts signal handling and builds the engine. The engine always
// analyses at the output device rate.
func newHost() (*host, error) {
	h := &host{manager: lifecycle.NewManager()}
	h.manager.SetForceKillTimeout(cfg.Scheduler.JoinTimeout * 5)

	if cfg.Metrics.Enabled {
		h.provider = observe.NewProvider()
		m, err := observe.NewMetrics(h.provider)
		if err != nil {
			return nil, fmt.Errorf("unable to create metrics: %w", err)
		}
		h.metrics = m
		h.manager.Register(lifecycle.Func{
			ComponentName: h.provider.Name(),
			ShutdownFunc:  h.printMetrics,
		})
	}

	if cfg.Log.Debug {
		h.monitor = lifecycle.NewResourceMonitor(5 * time.Second)
		h.monitor.Start()
		h.manager.Register(h.monitor)
	}

	ec := cfg.Engine
	if ec.SampleRate != cfg.Scheduler.OutputSampleRate {
		log.Debug("Engine follows the output rate",
			"engine_rate", ec.SampleRate,
			"output_rate", cfg.Scheduler.OutputSampleRate)
		ec.SampleRate = cfg.Scheduler.OutputSampleRate
	}
	h.engine = lipsync.NewEngine(ec,
		lipsync.WithSmoother(cfg.Smoother),
		lipsync.WithMetrics(h.metrics))

	h.manager.Start()
	return h, nil
}

// Context is cancelled on SIGINT, SIGTERM or shutdown.
func (h *host) Context() context.Context {
	return h.manager.Context()
}

// outputDevice opens the configured output device.
func (h *host) outputDevice() (audio.OutputDevice, error) {
	buffer := time.Duration(cfg.Device.BufferSize) * time.Millisecond
	if buffer == 0 {
		buffer = audio.DetectHost().OutputBuffer()
	}
	return audio.NewOutputDevice(cfg.Device.Backend, cfg.Scheduler.OutputSampleRate, buffer)
}

// newMic opens the input device and wraps it in a recording mic that
// reports forwarded frames at debug level.
func (h *host) newMic() (*lsync.Mic, error) {
	in, err := audio.NewInputDevice(cfg.Device.Backend, cfg.Scheduler.InputSampleRate, cfg.Scheduler.InputChunkSamples())
	if err != nil {
		return nil, fmt.Errorf("unable to open microphone: %w", err)
	}
	every := rate.Sometimes{Interval: time.Second}
	mic := lsync.NewMic(cfg.Scheduler, in, func(frame []byte) {
		every.Do(func() {
			log.Debug("Mic input", "level", fmt.Sprintf("%.3f", audio.Level(audio.BytesToInt16(frame))))
		})
	}, h.metrics)
	mic.StartRecording()
	return mic, nil
}

// Shutdown stops every registered component.
func (h *host) Shutdown() error {
	return h.manager.Shutdown()
}

func (h *host) printMetrics(ctx context.Context) error {
	lines, err := h.provider.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nmetrics:")
	for _, l := range lines {
		fmt.Fprintln(os.Stderr, "  "+l.String())
	}
	return h.provider.Shutdown(ctx)
}

// liveTarget is a player whose delay and emotion can change while it runs.
type liveTarget interface {
	SetFixedDelay(time.Duration)
	Engine() *lipsync.Engine
}

// watchConfig applies fixed_delay and emotion changes from the config file
// while t is playing.
func watchConfig(t liveTarget) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		d := lipsync.FixedDelayFromViper(cfg.Scheduler.FixedDelay)
		t.SetFixedDelay(d)

		name := viper.GetString("lipsync.engine.emotion")
		em, err := emotion.Resolve(name)
		if err != nil {
			log.Warn("Ignoring emotion from reloaded config", "error", err)
			return
		}
		intensity := viper.GetFloat64("lipsync.engine.emotion_intensity")
		t.Engine().SetEmotion(em, intensity)
		log.Info("Configuration reloaded", "fixed_delay", d, "emotion", em, "intensity", intensity)
	})
	viper.WatchConfig()
}

// printSink writes face parameters as JSON lines, at most every interval.
type printSink struct {
	enc   *json.Encoder
	every rate.Sometimes
	start time.Time
}

type faceLine struct {
	T float64 `json:"t"`
	lipsync.FaceParams
}

func newPrintSink(w io.Writer, interval time.Duration) lipsync.FaceSink {
	s := &printSink{
		enc:   json.NewEncoder(w),
		every: rate.Sometimes{Interval: interval},
		start: time.Now(),
	}
	return lipsync.NewFuncSink(s.write)
}

func (s *printSink) write(p lipsync.FaceParams) error {
	var err error
	s.every.Do(func() {
		err = s.enc.Encode(faceLine{T: time.Since(s.start).Seconds(), FaceParams: p})
	})
	return err
}
