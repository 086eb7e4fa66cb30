package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/lipsync"
)

// Worker samples a timeline at a fixed rate, runs the engine on each
// window and pushes the result to a face sink. One worker runs one
// playback session at a time.
type Worker struct {
	engine   *lipsync.Engine
	sink     lipsync.FaceSink
	metrics  *observe.Metrics
	interval time.Duration
	warnings *lipsync.ThrottledLogger

	delay      atomic.Int64
	updates    atomic.Int64
	sinkErrors atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a worker ticking every interval with the given delay
// behind playback. A nil sink discards updates.
func NewWorker(engine *lipsync.Engine, sink lipsync.FaceSink, interval, delay time.Duration, metrics *observe.Metrics) *Worker {
	if sink == nil {
		sink = lipsync.DiscardSink
	}
	if interval <= 0 {
		interval = time.Second / 60
	}
	w := &Worker{
		engine:   engine,
		sink:     sink,
		metrics:  metrics,
		interval: interval,
		warnings: lipsync.NewThrottledLogger(2*time.Second, 1),
	}
	w.delay.Store(int64(delay))
	return w
}

// SetDelay changes how far behind playback the worker reads.
func (w *Worker) SetDelay(d time.Duration) {
	w.delay.Store(int64(max(d, 0)))
	log.Debug("Lip-sync delay set", "delay", d)
}

// Delay returns the current delay.
func (w *Worker) Delay() time.Duration {
	return time.Duration(w.delay.Load())
}

// Start runs the worker on tl until Stop. It returns ErrAlreadyStarted if
// the worker is running.
func (w *Worker) Start(tl Timeline) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return lipsync.ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, tl, w.done)
	return nil
}

// Stop halts the worker and waits until it has closed the mouth. It is a
// no-op when the worker is not running.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the worker is running.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Updates returns the number of frames delivered to the sink.
func (w *Worker) Updates() int64 { return w.updates.Load() }

// SinkErrors returns the number of frames the sink rejected.
func (w *Worker) SinkErrors() int64 { return w.sinkErrors.Load() }

func (w *Worker) loop(ctx context.Context, tl Timeline, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// close the mouth
			w.push(lipsync.FaceParams{})
			return

		case t := <-ticker.C:
			w.metrics.RecordTick(ctx, time.Since(t))
			w.tick(tl)
		}
	}
}

func (w *Worker) tick(tl Timeline) {
	start, ok := tl.Start()
	if !ok {
		return
	}
	cur := Cursor{Start: start, SampleRate: tl.SampleRate(), Delay: w.Delay()}
	window, ok := tl.Window(cur.Position(time.Now()))
	if !ok {
		return
	}
	w.push(w.engine.ProcessSamples(window))
}

// push delivers p. A failing sink skips the frame.
func (w *Worker) push(p lipsync.FaceParams) {
	if err := lipsync.Apply(w.sink, p); err != nil {
		w.sinkErrors.Add(1)
		w.metrics.RecordSinkError(context.Background())
		w.warnings.Warn("Face sink update failed", "error", err)
		return
	}
	w.updates.Add(1)
}
