package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
	"github.com/dgnsrekt/lipsync/ui"
)

// Flags shared by the playback commands.
var (
	useTUI      bool
	fixedDelay  time.Duration
	emotionName string
	intensity   float64
	printEvery  time.Duration
	sourceRate  int
	withMic     bool
)

func addPlaybackFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&useTUI, "tui", "t", false, "show a live face meter")
	cmd.Flags().DurationVar(&fixedDelay, "delay", 0, "lip-sync delay behind playback (default from config)")
	cmd.Flags().StringVarP(&emotionName, "emotion", "e", "", "emotion bias: neutral, happy, sad, angry, surprised, questioning")
	cmd.Flags().Float64Var(&intensity, "intensity", 1.0, "emotion intensity from 0 to 1")
	cmd.Flags().DurationVar(&printEvery, "print-every", 100*time.Millisecond, "interval between printed frames")
	cmd.Flags().IntVar(&sourceRate, "source-rate", lsync.DefaultSourceRate, "sample rate of raw PCM input")
	cmd.Flags().BoolVar(&withMic, "mic", false, "capture the microphone, muted while audio plays")
}

// applyPlaybackFlags pushes the emotion and delay flags into a player.
func applyPlaybackFlags(cmd *cobra.Command, t liveTarget) error {
	if cmd.Flags().Changed("delay") {
		t.SetFixedDelay(fixedDelay)
	}
	if emotionName != "" {
		em, err := emotion.Resolve(emotionName)
		if err != nil {
			return fmt.Errorf("%w: %w", lipsync.ErrUnknownEmotion, err)
		}
		t.Engine().SetEmotion(em, intensity)
	}
	return nil
}

// readSource reads a file, or stdin for "-".
func readSource(arg string) ([]byte, error) {
	if arg == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return b, nil
	}
	path, err := homedir.Expand(arg)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	return b, nil
}

// presenter shows face parameters either as JSON lines on stdout or in the
// terminal meter.
type presenter struct {
	title string
	meter *ui.Sink
}

func newPresenter(title string) *presenter {
	p := &presenter{title: title}
	if useTUI {
		p.meter = ui.NewSink()
	}
	return p
}

// options returns the player options for the sink and callbacks. onEnded
// runs after the presenter has seen the end of a session.
func (p *presenter) options(onEnded func()) []lsync.Option {
	var cb lsync.Callbacks
	var sink lipsync.FaceSink
	if p.meter != nil {
		sink, cb = p.meter, p.meter.Callbacks()
	} else {
		sink = newPrintSink(os.Stdout, printEvery)
		cb = lsync.Callbacks{
			OnPlaybackStarted: func() { log.Info("Playback started") },
			OnPlaybackEnded:   func() { log.Info("Playback ended") },
		}
	}

	ended := cb.OnPlaybackEnded
	cb.OnPlaybackEnded = func() {
		ended()
		if onEnded != nil {
			onEnded()
		}
	}
	return []lsync.Option{lsync.WithSink(sink), lsync.WithCallbacks(cb)}
}

// run calls play, inside the meter when enabled. Quitting the meter calls
// interrupt and waits for play to return.
func (p *presenter) run(ctx context.Context, engine *lipsync.Engine, interrupt func(), play func(context.Context) error) error {
	if p.meter == nil {
		return play(ctx)
	}

	mc, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	mc.Title = p.title
	mc.ExitOnDone = true

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := ui.NewProgram(ui.NewModel(mc, engine, interrupt))
	p.meter.Attach(prog)

	done := make(chan error, 1)
	go func() {
		err := play(ctx)
		p.meter.Done(err)
		done <- err
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	// the user may have quit before the audio finished
	cancel()
	err = <-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
