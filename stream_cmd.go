package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/lipsync/internal/lifecycle"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

var (
	streamBase64    bool
	interruptAfter  time.Duration
	streamPrebuffer time.Duration

	streamCmd = &cobra.Command{
		Use:   "stream FILE",
		Short: "Stream an audio file in small chunks with lip-sync",
		Long: paragraph(fmt.Sprintf("\n%s a file the way a speech service would: decoded, cut into small chunks and fed at real-time pace. The lip-sync follows a sliding window of what was played.",
			keyword("Stream"))),
		Example: paragraph("lipsync stream hello.wav\nlipsync stream --base64 --interrupt-after 1.5s hello.mp3"),
		Args:    cobra.ExactArgs(1),
		RunE:    runStream,
	}
)

func init() {
	addPlaybackFlags(streamCmd)
	streamCmd.Flags().BoolVar(&streamBase64, "base64", false, "send chunks base64 encoded")
	streamCmd.Flags().DurationVar(&interruptAfter, "interrupt-after", 0, "interrupt playback after this long")
	streamCmd.Flags().DurationVar(&streamPrebuffer, "prebuffer", 200*time.Millisecond, "audio sent ahead of real time")
}

func runStream(cmd *cobra.Command, args []string) error {
	data, err := readSource(args[0])
	if err != nil {
		return err
	}
	seg, err := audio.Decode(data, sourceRate)
	if err != nil {
		return err
	}

	h, err := newHost()
	if err != nil {
		return err
	}
	err = streamSegment(cmd, h, args[0], seg)
	return errors.Join(err, h.Shutdown())
}

func streamSegment(cmd *cobra.Command, h *host, name string, seg audio.Segment) error {
	out, err := h.outputDevice()
	if err != nil {
		return err
	}

	ended := make(chan struct{}, 1)
	pr := newPresenter(name)
	opts := pr.options(func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	opts = append(opts, lsync.WithMetrics(h.metrics))
	if withMic {
		mic, err := h.newMic()
		if err != nil {
			_ = out.Close()
			return err
		}
		opts = append(opts, lsync.WithMic(mic))
	}

	p, err := lsync.NewPlayer(cfg.Scheduler, h.engine, out, opts...)
	if err != nil {
		_ = out.Close()
		return err
	}
	h.manager.Register(lifecycle.Closer("player", p.Close))
	if err := p.Start(h.Context()); err != nil {
		return err
	}
	if err := applyPlaybackFlags(cmd, p); err != nil {
		return err
	}
	watchConfig(p)

	samples := seg.For(cfg.Scheduler.OutputSampleRate).Samples
	err = pr.run(h.Context(), h.engine, p.InterruptPlayback, func(ctx context.Context) error {
		return feed(ctx, p, samples, ended)
	})
	if errors.Is(err, lipsync.ErrPlaybackCancelled) {
		log.Info("Playback interrupted")
		err = nil
	}
	log.Debug("Stream finished", "stats", p.Stats())
	return err
}

// feed sends samples in chunks at real-time pace, keeping the prebuffer
// ahead of playback, then waits for the session to end.
func feed(ctx context.Context, p *lsync.Player, samples []int16, ended <-chan struct{}) error {
	if interruptAfter > 0 {
		ictx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		t := time.AfterFunc(interruptAfter, func() {
			p.InterruptPlayback()
			cancel(lipsync.ErrPlaybackCancelled)
		})
		defer t.Stop()
		ctx = ictx
	}

	chunks := audio.Split(samples, cfg.Scheduler.ChunkSamples())
	period := time.Duration(cfg.Scheduler.ChunkMS) * time.Millisecond
	ahead := int(streamPrebuffer / period)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for i, c := range chunks {
		if i >= ahead {
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case <-ticker.C:
			}
		}

		pcm := audio.Int16ToBytes(c)
		var err error
		if streamBase64 {
			err = p.AddOutputAudioBase64(base64.StdEncoding.EncodeToString(pcm))
		} else {
			err = p.AddOutputAudio(pcm)
		}
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	p.MarkResponseDone()

	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
