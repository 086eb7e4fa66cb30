package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
)

// DefaultSourceRate is the rate assumed for raw PCM segments.
const DefaultSourceRate = 44100

// BatchPlayer plays one complete segment at a time. The lip-sync worker
// reads the decoded segment directly, centred on the playback position.
type BatchPlayer struct {
	cfg        lipsync.SchedulerConfig
	engine     *lipsync.Engine
	out        audio.OutputDevice
	worker     *Worker
	callbacks  Callbacks
	metrics    *observe.Metrics
	mic        *Mic
	sourceRate int

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewBatchPlayer creates a batch player writing to out. Segments are
// resampled to the device rate, which must be the engine rate.
func NewBatchPlayer(cfg lipsync.SchedulerConfig, engine *lipsync.Engine, out audio.OutputDevice, opts ...Option) (*BatchPlayer, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: no output device", lipsync.ErrDeviceUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine.SampleRate() != out.SampleRate() {
		return nil, fmt.Errorf("%w: engine rate %d does not match device rate %d",
			lipsync.ErrInvalidConfig, engine.SampleRate(), out.SampleRate())
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &BatchPlayer{
		cfg:        cfg,
		engine:     engine,
		out:        out,
		worker:     NewWorker(engine, o.sink, cfg.TickInterval(), 0, o.metrics),
		callbacks:  o.callbacks,
		metrics:    o.metrics,
		mic:        o.mic,
		sourceRate: DefaultSourceRate,
	}, nil
}

// SetSourceRate sets the rate of raw PCM segments.
func (b *BatchPlayer) SetSourceRate(sr int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sourceRate = sr
}

// PlaySegment decodes data (WAV, MP3 or raw PCM at the source rate) and
// plays it.
func (b *BatchPlayer) PlaySegment(ctx context.Context, data []byte) error {
	b.mu.Lock()
	sr := b.sourceRate
	b.mu.Unlock()

	seg, err := audio.Decode(data, sr)
	if err != nil {
		return lipsync.NewError(err, "batch player", "decode segment").
			WithContext("bytes", len(data))
	}
	return b.PlayDecoded(ctx, seg)
}

// PlayDecoded plays seg and blocks until it has finished playing, ctx is
// done or Interrupt is called. An interrupted segment returns an error
// wrapping ErrPlaybackCancelled.
func (b *BatchPlayer) PlayDecoded(ctx context.Context, seg audio.Segment) error {
	sr := b.out.SampleRate()
	seg = seg.For(sr)
	if len(seg.Samples) == 0 {
		return lipsync.ErrEmptyAudio
	}

	ctx, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer b.finish()

	// a cancelled context aborts the blocked write
	stop := context.AfterFunc(ctx, func() { _ = b.out.Reset() })
	defer stop()

	tl := NewSegmentTimeline(seg.Samples, sr, b.cfg.TickRate)
	chunk := sr * b.cfg.ChunkMS / 1000

	log.Debug("Playing segment", "duration", tl.Duration(), "sample_rate", sr)
	for i, c := range audio.Split(seg.Samples, chunk) {
		if ctx.Err() != nil {
			break
		}
		if i == 0 {
			tl.MarkStart(time.Now())
			b.started(tl)
		}
		if _, err := b.out.Write(audio.Int16ToBytes(c)); err != nil {
			if ctx.Err() == nil {
				log.Warn("Audio write failed", "error", err)
				b.ended()
				return fmt.Errorf("write segment: %w", err)
			}
			break
		}
		b.metrics.RecordSamplesWritten(ctx, len(c))
	}

	// wait for the device to play out what it buffered
	if ctx.Err() == nil {
		start, _ := tl.Start()
		if wait := time.Until(start.Add(tl.Duration())); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}

	interrupted := ctx.Err() != nil
	b.ended()
	if interrupted {
		return fmt.Errorf("%w: %w", lipsync.ErrPlaybackCancelled, context.Cause(ctx))
	}
	return nil
}

// Interrupt stops the segment that is playing, if any.
func (b *BatchPlayer) Interrupt() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		b.metrics.RecordInterrupt(context.Background())
		log.Info("Segment interrupted")
		cancel()
	}
}

// SetFixedDelay changes how far behind playback the lip-sync reads.
func (b *BatchPlayer) SetFixedDelay(d time.Duration) {
	b.worker.SetDelay(d)
}

// Engine returns the player's engine.
func (b *BatchPlayer) Engine() *lipsync.Engine {
	return b.engine
}

// Updates returns the number of face updates delivered.
func (b *BatchPlayer) Updates() int64 {
	return b.worker.Updates()
}

// Close interrupts playback and closes the device.
func (b *BatchPlayer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.worker.Stop()
	return b.out.Close()
}

func (b *BatchPlayer) begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return nil, lipsync.ErrPlayerClosed
	case b.cancel != nil:
		return nil, lipsync.ErrAlreadyStarted
	}
	ctx, b.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (b *BatchPlayer) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *BatchPlayer) started(tl *SegmentTimeline) {
	b.metrics.PlaybackStarted(context.Background())
	b.callbacks.started()
	if b.mic != nil {
		b.mic.Mute()
	}
	if err := b.worker.Start(tl); err != nil {
		log.Warn("Lip-sync worker already running", "error", err)
	}
}

// ended stops the worker, which closes the mouth, and then reports the
// end of playback.
func (b *BatchPlayer) ended() {
	if !b.worker.Running() {
		return
	}
	b.worker.Stop()
	b.engine.Reset()
	b.metrics.PlaybackEnded(context.Background())
	b.callbacks.ended()
	if b.mic != nil {
		b.mic.UnmuteAfter(b.cfg.MicCooldown)
	}
}
