package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/lipsync/internal/lifecycle"
	"github.com/dgnsrekt/lipsync/lipsync"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a whole audio file with lip-sync",
	Long: paragraph(fmt.Sprintf("\n%s a WAV, MP3 or raw PCM file in one piece. The lip-sync reads the decoded file directly, centred on the playback position. Use - to read from stdin.",
		keyword("Play"))),
	Example: paragraph("lipsync play hello.wav\nlipsync play --tui --emotion happy hello.mp3\ncat speech.pcm | lipsync play --source-rate 24000 -"),
	Args:    cobra.ExactArgs(1),
	RunE:    runPlay,
}

func init() {
	addPlaybackFlags(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	data, err := readSource(args[0])
	if err != nil {
		return err
	}

	h, err := newHost()
	if err != nil {
		return err
	}
	err = playFile(cmd, h, args[0], data)
	return errors.Join(err, h.Shutdown())
}

func playFile(cmd *cobra.Command, h *host, name string, data []byte) error {
	out, err := h.outputDevice()
	if err != nil {
		return err
	}

	pr := newPresenter(name)
	opts := append(pr.options(nil), lsync.WithMetrics(h.metrics))
	if withMic {
		mic, err := h.newMic()
		if err != nil {
			_ = out.Close()
			return err
		}
		h.manager.Register(lifecycle.Closer("mic", mic.Close))
		go func() {
			if err := mic.Run(h.Context()); err != nil {
				log.Error("Mic capture stopped", "error", err)
			}
		}()
		opts = append(opts, lsync.WithMic(mic))
	}

	bp, err := lsync.NewBatchPlayer(cfg.Scheduler, h.engine, out, opts...)
	if err != nil {
		_ = out.Close()
		return err
	}
	h.manager.Register(lifecycle.Closer("player", bp.Close))
	bp.SetSourceRate(sourceRate)
	if err := applyPlaybackFlags(cmd, bp); err != nil {
		return err
	}
	watchConfig(bp)

	err = pr.run(h.Context(), h.engine, bp.Interrupt, func(ctx context.Context) error {
		return bp.PlaySegment(ctx, data)
	})
	if errors.Is(err, lipsync.ErrPlaybackCancelled) {
		log.Info("Playback interrupted")
		return nil
	}
	if err == nil {
		log.Debug("Playback finished", "updates", bp.Updates())
	}
	return err
}
