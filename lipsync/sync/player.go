// Package sync schedules lip-sync against audio playback.
//
// Audio reaches the device through one of two players. Player streams
// small chunks as they arrive and keeps a sliding ring of what it played.
// BatchPlayer plays one fully decoded segment. Both drive a Worker that
// samples the audio a fixed delay behind playback, runs the engine and
// pushes face parameters to a sink.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/internal/queue"
	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
)

// Callbacks are invoked on scheduler goroutines. They must not call
// InterruptPlayback, Interrupt or Close.
type Callbacks struct {
	OnPlaybackStarted func()
	OnPlaybackEnded   func()
}

func (c Callbacks) started() {
	if c.OnPlaybackStarted != nil {
		c.OnPlaybackStarted()
	}
}

func (c Callbacks) ended() {
	if c.OnPlaybackEnded != nil {
		c.OnPlaybackEnded()
	}
}

// Option configures a player.
type Option func(*options)

type options struct {
	callbacks Callbacks
	metrics   *observe.Metrics
	mic       *Mic
	sink      lipsync.FaceSink
}

// WithCallbacks sets the playback callbacks.
func WithCallbacks(c Callbacks) Option {
	return func(o *options) { o.callbacks = c }
}

// WithMetrics records playback metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMic gates mic while audio plays and runs its capture loop alongside
// the player.
func WithMic(m *Mic) Option {
	return func(o *options) { o.mic = m }
}

// WithSink sets the face sink. The default discards updates.
func WithSink(s lipsync.FaceSink) Option {
	return func(o *options) { o.sink = s }
}

// Stats is a snapshot of player counters.
type Stats struct {
	ChunksReceived  int64     `json:"chunks_received"`
	SamplesReceived int64     `json:"samples_received"`
	SamplesWritten  int64     `json:"samples_written"`
	DecodeErrors    int64     `json:"decode_errors"`
	Interrupts      int64     `json:"interrupts"`
	Sessions        int64     `json:"sessions"`
	PendingChunks   int       `json:"pending_chunks"`
	RingLength      int       `json:"ring_length"`
	ChunkCounter    int64     `json:"chunk_counter"`
	PlaybackActive  bool      `json:"playback_active"`
	Updates         int64     `json:"updates"`
	SinkErrors      int64     `json:"sink_errors"`
	Mic             *MicStats `json:"mic,omitempty"`
}

// pcmChunk is decoded audio tagged with the session generation it was
// queued in.
type pcmChunk struct {
	data []byte
	gen  uint64
}

type encodedChunk struct {
	data string
	gen  uint64
}

// Player is the realtime scheduler. Chunks of PCM arrive continuously and
// are played as soon as they arrive. Every played chunk also goes into a
// sliding ring that the lip-sync worker reads a fixed delay behind
// playback. Playback ends when the producer has marked the response done
// and nothing has been played for a while, or when interrupted.
type Player struct {
	cfg       lipsync.SchedulerConfig
	engine    *lipsync.Engine
	out       audio.OutputDevice
	ring      *audio.Ring
	worker    *Worker
	chunkSize int

	encoded *queue.Queue[encodedChunk]
	pcm     *queue.Queue[pcmChunk]

	callbacks Callbacks
	metrics   *observe.Metrics
	mic       *Mic
	warnings  *lipsync.ThrottledLogger

	// gen changes on every interrupt; chunks from older generations are
	// dropped.
	gen atomic.Uint64

	// session serialises the start and end of playback sessions.
	session sync.Mutex
	active  bool

	mu           sync.Mutex
	responseDone bool
	lastWrite    time.Time

	lifeMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	closed  bool

	chunksReceived  atomic.Int64
	samplesReceived atomic.Int64
	samplesWritten  atomic.Int64
	decodeErrors    atomic.Int64
	interrupts      atomic.Int64
	sessions        atomic.Int64
}

// NewPlayer creates a realtime player writing to out. The engine must
// analyse at the device rate. The player owns out and closes it on Close.
func NewPlayer(cfg lipsync.SchedulerConfig, engine *lipsync.Engine, out audio.OutputDevice, opts ...Option) (*Player, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: no output device", lipsync.ErrDeviceUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sr := out.SampleRate()
	if engine.SampleRate() != sr {
		return nil, fmt.Errorf("%w: engine rate %d does not match device rate %d",
			lipsync.ErrInvalidConfig, engine.SampleRate(), sr)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	chunkSize := sr * cfg.ChunkMS / 1000
	encodedCost := func(c encodedChunk) int64 { return queue.String(c.data) }
	pcmCost := func(c pcmChunk) int64 { return queue.Bytes(c.data) }
	p := &Player{
		cfg:       cfg,
		engine:    engine,
		out:       out,
		ring:      audio.NewRing(cfg.RingCapacity, chunkSize),
		worker:    NewWorker(engine, o.sink, cfg.TickInterval(), cfg.FixedDelay, o.metrics),
		chunkSize: chunkSize,
		encoded:   queue.New(cfg.QueueCapacity, cfg.QueueMemoryLimit, encodedCost),
		pcm:       queue.New(cfg.QueueCapacity, cfg.QueueMemoryLimit, pcmCost),
		callbacks: o.callbacks,
		metrics:   o.metrics,
		mic:       o.mic,
		warnings:  lipsync.NewThrottledLogger(2*time.Second, 1),
	}
	return p, nil
}

// Start launches the decoder and player goroutines, and the mic capture
// loop if the player has a mic.
func (p *Player) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	switch {
	case p.closed:
		return lipsync.ErrPlayerClosed
	case p.started:
		return lipsync.ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.group, p.ctx = errgroup.WithContext(ctx)
	p.group.Go(func() error { return p.decodeLoop(p.ctx) })
	p.group.Go(func() error { return p.playLoop(p.ctx) })
	if p.mic != nil {
		p.group.Go(func() error {
			// a broken mic must not stop playback
			if err := p.mic.Run(p.ctx); err != nil {
				log.Error("Mic capture stopped", "error", err)
			}
			return nil
		})
	}

	log.Debug("Realtime player started",
		"sample_rate", p.out.SampleRate(),
		"chunk_samples", p.chunkSize,
		"delay", p.worker.Delay())
	return nil
}

// AddOutputAudio queues one chunk of mono 16-bit PCM at the device rate.
// It blocks while the queue is full.
func (p *Player) AddOutputAudio(chunk []byte) error {
	if err := audio.ValidatePCM(chunk, audio.Mono(p.out.SampleRate())); err != nil {
		p.decodeErrors.Add(1)
		p.metrics.RecordDecodeError(context.Background())
		return err
	}
	ctx, err := p.context()
	if err != nil {
		return err
	}
	p.setResponseDone(false)

	c := pcmChunk{data: bytes.Clone(chunk), gen: p.gen.Load()}
	if err := p.pcm.Enqueue(ctx, c); err != nil {
		return fmt.Errorf("queue audio: %w", err)
	}
	p.chunksReceived.Add(1)
	p.samplesReceived.Add(int64(len(chunk) / audio.BytesPerSample))
	return nil
}

// AddOutputAudioBase64 queues one base64 encoded PCM chunk. Decoding
// happens on the decoder goroutine; chunks that fail to decode are logged
// and dropped.
func (p *Player) AddOutputAudioBase64(s string) error {
	ctx, err := p.context()
	if err != nil {
		return err
	}
	p.setResponseDone(false)

	if err := p.encoded.Enqueue(ctx, encodedChunk{data: s, gen: p.gen.Load()}); err != nil {
		return fmt.Errorf("queue encoded audio: %w", err)
	}
	p.chunksReceived.Add(1)
	return nil
}

// MarkResponseDone signals that no more audio follows for this turn.
func (p *Player) MarkResponseDone() {
	p.setResponseDone(true)
	log.Debug("Response marked done")
}

// ClearOutputBuffer drops queued audio. Audio already handed to the device
// keeps playing.
func (p *Player) ClearOutputBuffer() {
	n := p.encoded.Clear() + p.pcm.Clear()
	log.Debug("Output buffer cleared", "dropped_chunks", n)
}

// InterruptPlayback stops the sound at once, drops everything queued and
// ends the session. The device stays usable for the next utterance.
func (p *Player) InterruptPlayback() {
	p.session.Lock()
	defer p.session.Unlock()

	p.gen.Add(1)
	dropped := p.encoded.Clear() + p.pcm.Clear()
	if err := p.out.Reset(); err != nil {
		log.Warn("Failed to reset output device", "error", err)
	}
	p.interrupts.Add(1)
	p.metrics.RecordInterrupt(context.Background())
	log.Info("Playback interrupted", "dropped_chunks", dropped)

	p.endLocked("interrupted")
}

// SetFixedDelay changes how far behind playback the lip-sync reads.
func (p *Player) SetFixedDelay(d time.Duration) {
	p.worker.SetDelay(d)
}

// FixedDelay returns the current lip-sync delay.
func (p *Player) FixedDelay() time.Duration {
	return p.worker.Delay()
}

// Engine returns the player's engine, for emotion control.
func (p *Player) Engine() *lipsync.Engine {
	return p.engine
}

// Mic returns the player's mic or nil.
func (p *Player) Mic() *Mic {
	return p.mic
}

// Playing reports whether a playback session is in progress.
func (p *Player) Playing() bool {
	p.session.Lock()
	defer p.session.Unlock()
	return p.active
}

// Stats returns a snapshot of the player counters.
func (p *Player) Stats() Stats {
	rs := p.ring.Stats()
	s := Stats{
		ChunksReceived:  p.chunksReceived.Load(),
		SamplesReceived: p.samplesReceived.Load(),
		SamplesWritten:  p.samplesWritten.Load(),
		DecodeErrors:    p.decodeErrors.Load(),
		Interrupts:      p.interrupts.Load(),
		Sessions:        p.sessions.Load(),
		PendingChunks:   p.encoded.Size() + p.pcm.Size(),
		RingLength:      rs.CurrentSize,
		ChunkCounter:    rs.Counter,
		PlaybackActive:  p.worker.Running(),
		Updates:         p.worker.Updates(),
		SinkErrors:      p.worker.SinkErrors(),
	}
	if p.mic != nil {
		ms := p.mic.Stats()
		s.Mic = &ms
	}
	return s
}

// Close stops every goroutine, ends any session and closes the devices.
// Goroutines get the join timeout each; after that the output device is
// force-closed to unblock them.
func (p *Player) Close() error {
	p.lifeMu.Lock()
	if p.closed {
		p.lifeMu.Unlock()
		return nil
	}
	p.closed = true
	cancel, group := p.cancel, p.group
	p.lifeMu.Unlock()

	p.session.Lock()
	p.gen.Add(1)
	p.endLocked("closed")
	p.session.Unlock()

	_ = p.encoded.Close()
	_ = p.pcm.Close()

	var errs []error
	if cancel != nil {
		cancel()
		_ = p.out.Reset()
		if err := p.join(group); err != nil {
			errs = append(errs, err)
		}
	}

	if err := p.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	if p.mic != nil {
		if err := p.mic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mic: %w", err))
		}
	}
	log.Debug("Realtime player closed", "stats", p.Stats())
	return errors.Join(errs...)
}

// join waits for the goroutines, force-closing the devices if they do not
// exit in time.
func (p *Player) join(group *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	timeout := p.cfg.JoinTimeout * 3
	select {
	case err := <-done:
		return ignoreShutdown(err)
	case <-time.After(timeout):
	}

	log.Warn("Player goroutines did not stop in time, closing devices", "timeout", timeout)
	_ = p.out.Close()
	if p.mic != nil {
		_ = p.mic.Close()
	}
	select {
	case err := <-done:
		return ignoreShutdown(err)
	case <-time.After(p.cfg.JoinTimeout):
		return fmt.Errorf("player goroutines abandoned after %v", timeout+p.cfg.JoinTimeout)
	}
}

func ignoreShutdown(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
		return nil
	}
	return err
}

func (p *Player) context() (context.Context, error) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	switch {
	case p.closed:
		return nil, lipsync.ErrPlayerClosed
	case !p.started:
		return nil, lipsync.ErrPlayerNotStarted
	}
	return p.ctx, nil
}

func (p *Player) setResponseDone(done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseDone = done
}

// decodeLoop turns encoded chunks into PCM chunks.
func (p *Player) decodeLoop(ctx context.Context) error {
	for {
		c, ok, err := p.encoded.DequeueTimeout(ctx, p.cfg.QueueTimeout)
		if err != nil {
			return ignoreShutdown(err)
		}
		if !ok {
			continue
		}

		pcm, err := audio.DecodeBase64(c.data)
		if err != nil {
			p.decodeErrors.Add(1)
			p.metrics.RecordDecodeError(ctx)
			p.warnings.Warn("Dropping undecodable audio chunk", "error", err)
			continue
		}
		if len(pcm) == 0 {
			continue
		}
		err = p.pcm.Enqueue(ctx, pcmChunk{data: pcm, gen: c.gen})
		if errors.Is(err, queue.ErrQueueFull) {
			p.warnings.Warn("Dropping audio chunk over the queue memory limit", "bytes", len(pcm))
			continue
		}
		if err != nil {
			return ignoreShutdown(err)
		}
		p.samplesReceived.Add(int64(len(pcm) / audio.BytesPerSample))
	}
}

// playLoop writes queued chunks to the device and watches for the end of
// playback.
func (p *Player) playLoop(ctx context.Context) error {
	for {
		c, ok, err := p.pcm.DequeueTimeout(ctx, p.cfg.QueueTimeout)
		if err != nil {
			return ignoreShutdown(err)
		}
		if ok {
			p.play(c)
		}
		p.checkEnd()
	}
}

// play splits c into device chunks. Each one goes into the ring and then
// to the device.
func (p *Player) play(c pcmChunk) {
	samples := audio.BytesToInt16(c.data)
	for _, sub := range audio.Split(samples, p.chunkSize) {
		if !p.append(sub, c.gen) {
			return
		}

		if _, err := p.out.Write(audio.Int16ToBytes(sub)); err != nil {
			if !errors.Is(err, lipsync.ErrPlaybackCancelled) {
				p.warnings.Warn("Audio write failed", "error", err)
			}
			return
		}

		p.samplesWritten.Add(int64(len(sub)))
		p.metrics.RecordSamplesWritten(context.Background(), len(sub))
		p.mu.Lock()
		p.lastWrite = time.Now()
		p.mu.Unlock()
	}
}

// append adds sub to the ring unless it belongs to an interrupted
// generation. The first chunk of a session starts the session.
func (p *Player) append(sub []int16, gen uint64) bool {
	p.session.Lock()
	defer p.session.Unlock()

	if gen != p.gen.Load() {
		return false
	}
	if p.ring.Append(sub, time.Now()) {
		p.beginLocked()
	}
	return true
}

// beginLocked starts a session. Called with session held.
func (p *Player) beginLocked() {
	p.active = true
	p.sessions.Add(1)
	p.mu.Lock()
	p.lastWrite = time.Now()
	p.mu.Unlock()

	log.Debug("Playback started", "session", p.sessions.Load())
	p.metrics.PlaybackStarted(context.Background())
	p.callbacks.started()
	if p.mic != nil {
		p.mic.Mute()
	}
	if err := p.worker.Start(NewRingTimeline(p.ring, p.out.SampleRate())); err != nil {
		log.Warn("Lip-sync worker already running", "error", err)
	}
}

// checkEnd ends the session once the response is done and playback has
// been idle long enough, or when idle past the forced limit.
func (p *Player) checkEnd() {
	p.mu.Lock()
	idle := time.Since(p.lastWrite)
	done := p.responseDone
	p.mu.Unlock()

	var reason string
	switch {
	case idle < p.cfg.EndIdle:
		return
	case done && p.pcm.Size() == 0 && p.encoded.Size() == 0:
		reason = "response complete"
	case idle >= p.cfg.ForceIdle:
		reason = "idle timeout"
	default:
		return
	}

	p.session.Lock()
	defer p.session.Unlock()
	if !p.active {
		return
	}
	if reason == "idle timeout" {
		log.Info("Playback idle, forcing end", "idle", idle.Round(time.Millisecond))
	}
	p.endLocked(reason)
}

// endLocked ends the current session, if any. The worker stops first so
// the mouth closes before the ended callback. Called with session held.
func (p *Player) endLocked(reason string) {
	p.worker.Stop()
	p.ring.Clear()
	if !p.active {
		return
	}
	p.active = false

	p.engine.Reset()
	p.metrics.PlaybackEnded(context.Background())
	log.Debug("Playback ended", "reason", reason, "samples_written", p.samplesWritten.Load())
	p.callbacks.ended()
	if p.mic != nil {
		p.mic.UnmuteAfter(p.cfg.MicCooldown)
	}
}
