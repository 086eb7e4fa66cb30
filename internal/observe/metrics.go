// Package observe provides the OpenTelemetry metric instruments recorded by
// the lip-sync engine and scheduler.
//
// Instruments are created from a [metric.MeterProvider] with [NewMetrics].
// Every Record method is safe on a nil *Metrics, so components can hold an
// optional instance without branching at call sites. Tests should pass a
// provider backed by an sdk ManualReader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lip-sync metrics.
const meterName = "github.com/dgnsrekt/lipsync"

// Metrics holds all OpenTelemetry metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// --- Engine ---

	// FrameDuration tracks per-frame analysis latency.
	FrameDuration metric.Float64Histogram

	// Frames counts analysed frames. Use with attribute:
	//   attribute.String("viseme", ...)
	Frames metric.Int64Counter

	// EngineErrors counts frames that failed and returned zero parameters.
	EngineErrors metric.Int64Counter

	// --- Scheduler ---

	// TickLag tracks how late each lip-sync tick fired.
	TickLag metric.Float64Histogram

	// SamplesWritten counts samples written to the output device.
	SamplesWritten metric.Int64Counter

	// Interrupts counts hard playback stops.
	Interrupts metric.Int64Counter

	// DecodeErrors counts dropped inbound chunks.
	DecodeErrors metric.Int64Counter

	// SinkErrors counts face sink failures.
	SinkErrors metric.Int64Counter

	// MicFrames counts microphone frames. Use with attribute:
	//   attribute.String("status", "forwarded"|"muted"|"silent")
	MicFrames metric.Int64Counter

	// ActivePlayback tracks the number of playback sessions in progress.
	ActivePlayback metric.Int64UpDownCounter
}

// frameBuckets are histogram boundaries (in seconds) for sub-frame latencies.
var frameBuckets = []float64{
	0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("lipsync.engine.frame.duration",
		metric.WithDescription("Latency of one lip-sync frame analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickLag, err = m.Float64Histogram("lipsync.worker.tick.lag",
		metric.WithDescription("Delay between the scheduled and actual lip-sync tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("lipsync.engine.frames",
		metric.WithDescription("Analysed frames by viseme."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("lipsync.engine.errors",
		metric.WithDescription("Frames that failed analysis."),
	); err != nil {
		return nil, err
	}
	if met.SamplesWritten, err = m.Int64Counter("lipsync.playback.samples",
		metric.WithDescription("Samples written to the output device."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("lipsync.playback.interrupts",
		metric.WithDescription("Playback interrupts."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("lipsync.playback.decode_errors",
		metric.WithDescription("Inbound chunks dropped because they failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("lipsync.sink.errors",
		metric.WithDescription("Face sink updates that failed."),
	); err != nil {
		return nil, err
	}
	if met.MicFrames, err = m.Int64Counter("lipsync.mic.frames",
		metric.WithDescription("Microphone frames by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePlayback, err = m.Int64UpDownCounter("lipsync.playback.active",
		metric.WithDescription("Playback sessions in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame records one analysed frame.
func (m *Metrics) RecordFrame(ctx context.Context, viseme string, d time.Duration) {
	if m == nil {
		return
	}
	m.FrameDuration.Record(ctx, d.Seconds())
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("viseme", viseme)))
}

// RecordEngineError records a failed frame.
func (m *Metrics) RecordEngineError(ctx context.Context) {
	if m == nil {
		return
	}
	m.EngineErrors.Add(ctx, 1)
}

// RecordTick records the lag of one worker tick.
func (m *Metrics) RecordTick(ctx context.Context, lag time.Duration) {
	if m == nil {
		return
	}
	m.TickLag.Record(ctx, max(lag, 0).Seconds())
}

// RecordSamplesWritten adds n written samples.
func (m *Metrics) RecordSamplesWritten(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.SamplesWritten.Add(ctx, int64(n))
}

// RecordInterrupt records a playback interrupt.
func (m *Metrics) RecordInterrupt(ctx context.Context) {
	if m == nil {
		return
	}
	m.Interrupts.Add(ctx, 1)
}

// RecordDecodeError records a dropped inbound chunk.
func (m *Metrics) RecordDecodeError(ctx context.Context) {
	if m == nil {
		return
	}
	m.DecodeErrors.Add(ctx, 1)
}

// RecordSinkError records a face sink failure.
func (m *Metrics) RecordSinkError(ctx context.Context) {
	if m == nil {
		return
	}
	m.SinkErrors.Add(ctx, 1)
}

// RecordMicFrame records a microphone frame with its status.
func (m *Metrics) RecordMicFrame(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.MicFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// PlaybackStarted increments the active playback gauge.
func (m *Metrics) PlaybackStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActivePlayback.Add(ctx, 1)
}

// PlaybackEnded decrements the active playback gauge.
func (m *Metrics) PlaybackEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActivePlayback.Add(ctx, -1)
}
