package lipsync

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lipsync/internal/observe"
	"github.com/dgnsrekt/lipsync/lipsync/dsp"
	"github.com/dgnsrekt/lipsync/lipsync/emotion"
	"github.com/dgnsrekt/lipsync/lipsync/smooth"
	"github.com/dgnsrekt/lipsync/lipsync/viseme"
)

const (
	// fpsWindow is the number of frames between FPS estimates.
	fpsWindow = 60
	// fpsWarnRatio is the share of the target rate below which a slow
	// frame rate is reported.
	fpsWarnRatio = 0.8
	// maxLoggedErrors caps how many frame failures are logged.
	maxLoggedErrors = 3
	// warmupFrame is the length of the warm-up frame.
	warmupFrame = 20 * time.Millisecond
)

// Extractor computes the features of one frame.
type Extractor func(samples []float64, sampleRate int) dsp.Features

// Frame is the full result of analysing one frame.
type Frame struct {
	Params   FaceParams
	Viseme   viseme.Viseme
	Emotion  emotion.Emotion
	Features dsp.Features
	Scale    float64
	// Rate is the speaking rate relative to the nominal rate. Only
	// tracked with automatic emotion.
	Rate float64
}

// PerformanceStats is a snapshot of engine counters.
type PerformanceStats struct {
	AvgFPS           float64 `json:"avg_fps"`
	TargetFPS        float64 `json:"target_fps"`
	FrameCount       int64   `json:"frame_count"`
	CurrentViseme    string  `json:"current_viseme"`
	CurrentEmotion   string  `json:"current_emotion"`
	EmotionIntensity float64 `json:"emotion_intensity"`
	AdaptiveScale    float64 `json:"adaptive_scale"`
	ErrorCount       int64   `json:"error_count"`
}

// Engine turns audio frames into face parameters. One engine serves one
// audio session. Methods are safe for concurrent use, though frames are
// expected to come from a single worker.
type Engine struct {
	cfg        EngineConfig
	extract    Extractor
	metrics    *observe.Metrics
	now        func() time.Time
	slowFrames *ThrottledLogger

	mu        sync.Mutex
	smoother  *smooth.Smoother
	volume    *smooth.VolumeTracker
	rate      emotion.RateEstimator
	position  time.Duration // audio analysed since the last reset
	emotion   emotion.Emotion
	intensity float64
	current   viseme.Viseme
	last      FaceParams
	updated   time.Time

	frameCount int64
	fpsMark    time.Time
	avgFPS     float64
	errorCount int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics records frame latency and viseme counts.
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithExtractor replaces the feature extractor.
func WithExtractor(x Extractor) EngineOption {
	return func(e *Engine) { e.extract = x }
}

// WithSmoother applies smoothing and volume tracking settings.
func WithSmoother(cfg SmootherConfig) EngineOption {
	return func(e *Engine) {
		e.smoother = &smooth.Smoother{
			OpenAlpha:  cfg.AlphaOpen,
			FormAlpha:  cfg.AlphaForm,
			SmileAlpha: cfg.AlphaSmile,
		}
		e.volume = smooth.NewVolumeTrackerSize(cfg.HistorySize, cfg.MinHistory, cfg.InitialScale)
	}
}

// NewEngine creates an engine and runs one warm-up frame so the first real
// frame does not pay for lazy initialisation.
func NewEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultEngineConfig().SampleRate
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = DefaultEngineConfig().TargetFPS
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultEngineConfig().SilenceThreshold
	}

	e := &Engine{
		cfg:        cfg,
		extract:    dsp.Extract,
		now:        time.Now,
		slowFrames: NewThrottledLogger(5*time.Second, 1),
		smoother:   smooth.NewSmoother(),
		volume:     smooth.NewVolumeTracker(),
		intensity:  emotion.ClampIntensity(cfg.EmotionIntensity),
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.Emotion != "" {
		em, err := emotion.Parse(cfg.Emotion)
		if err != nil {
			log.Warn("Ignoring configured emotion", "error", err)
		}
		e.emotion = em
	}

	e.warmup()
	return e
}

func (e *Engine) warmup() {
	n := int(int64(e.cfg.SampleRate) * int64(warmupFrame) / int64(time.Second))
	zeros := make([]float64, n)
	// the silence gate skips extraction, so prime it directly
	func() {
		defer func() { _ = recover() }()
		e.extract(zeros, e.cfg.SampleRate)
	}()
	e.analyze(zeros)

	e.Reset()
	e.mu.Lock()
	e.frameCount = 0
	e.avgFPS = 0
	e.errorCount = 0
	e.fpsMark = e.now()
	e.mu.Unlock()
}

// ProcessAudioChunk analyses one chunk of 16-bit little-endian mono PCM
// and returns the face parameters. It never fails: on internal errors all
// parameters are zero.
func (e *Engine) ProcessAudioChunk(pcm []byte) FaceParams {
	return e.analyze(dsp.SamplesFromPCM16(pcm)).Params
}

// ProcessSamples is ProcessAudioChunk for decoded samples.
func (e *Engine) ProcessSamples(samples []int16) FaceParams {
	return e.analyze(dsp.SamplesFromInt16(samples)).Params
}

// AnalyzeSamples is ProcessSamples returning the full frame result.
func (e *Engine) AnalyzeSamples(samples []int16) Frame {
	return e.analyze(dsp.SamplesFromInt16(samples))
}

func (e *Engine) analyze(x []float64) (fr Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.errorCount++
			if e.errorCount <= maxLoggedErrors {
				log.Error("Lip-sync frame failed", "error", r, "samples", len(x), "errors", e.errorCount)
			}
			e.metrics.RecordEngineError(context.Background())
			fr = Frame{Viseme: viseme.Silence, Emotion: e.emotion, Scale: e.volume.Scale()}
		}
	}()

	rms := dsp.RMS(x)
	scale := e.volume.Observe(rms)

	var f dsp.Features
	v := viseme.Silence
	if rms > 0 && rms >= e.cfg.SilenceThreshold {
		f = e.extract(x, e.cfg.SampleRate)
		v = viseme.Classify(f, scale, e.cfg.SilenceThreshold)
	}
	target := viseme.Preset(v).Modulate(f.RMS, scale)

	// speaking rate runs on the audio timeline so offline analysis sees
	// the same rate as realtime playback
	at := time.Unix(0, 0).Add(e.position)
	e.position += time.Duration(int64(len(x)) * int64(time.Second) / int64(e.cfg.SampleRate))
	var speakingRate float64
	if e.cfg.AutoEmotion {
		e.rate.Observe(v, at)
		speakingRate = e.rate.Rate(at)
		if f.F0 > 0 {
			e.emotion = emotion.Infer(f.F0, f.RMS, speakingRate, scale)
		}
	}

	s := e.smoother.Step(target)
	bias := emotion.Bias(e.emotion, e.intensity)
	params := FaceParams{
		MouthOpen:  s.MouthOpen,
		MouthForm:  s.MouthForm,
		MouthSmile: s.MouthSmile + bias.MouthSmile,
		EyeBrowUp:  bias.EyeBrowUp,
		EyeWide:    bias.EyeWide,
	}.Clamp()

	e.current = v
	e.last = params
	e.updated = start
	e.countFrame(start)
	e.metrics.RecordFrame(context.Background(), v.String(), e.now().Sub(start))

	return Frame{
		Params:   params,
		Viseme:   v,
		Emotion:  e.emotion,
		Features: f,
		Scale:    scale,
		Rate:     speakingRate,
	}
}

// countFrame updates the frame counter and, every fpsWindow frames, the
// average frame rate over that window. Called with mu held.
func (e *Engine) countFrame(now time.Time) {
	e.frameCount++
	if e.frameCount%fpsWindow != 0 {
		return
	}
	if elapsed := now.Sub(e.fpsMark).Seconds(); elapsed > 0 {
		e.avgFPS = fpsWindow / elapsed
	}
	e.fpsMark = now
	if e.avgFPS < fpsWarnRatio*e.cfg.TargetFPS {
		e.slowFrames.Warn("Lip-sync frame rate below target",
			"fps", e.avgFPS, "target", e.cfg.TargetFPS)
	}
}

// SetEmotion sets the emotion overlay. Intensity is clamped to [0, 1].
func (e *Engine) SetEmotion(em emotion.Emotion, intensity float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emotion = em
	e.intensity = emotion.ClampIntensity(intensity)
	log.Debug("Emotion set", "emotion", em, "intensity", e.intensity)
}

// Emotion returns the current emotion and intensity.
func (e *Engine) Emotion() (emotion.Emotion, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emotion, e.intensity
}

// Reset clears the smoothed state, the volume history and the current
// viseme. The emotion is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.smoother.Reset()
	e.volume.Reset()
	e.rate.Reset()
	e.position = 0
	e.current = viseme.Silence
	e.last = FaceParams{}
}

// Last returns the most recent parameters and when they were computed.
func (e *Engine) Last() (FaceParams, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.updated
}

// SampleRate returns the rate frames are analysed at.
func (e *Engine) SampleRate() int {
	return e.cfg.SampleRate
}

// PerformanceStats returns a snapshot of the engine counters.
func (e *Engine) PerformanceStats() PerformanceStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PerformanceStats{
		AvgFPS:           e.avgFPS,
		TargetFPS:        e.cfg.TargetFPS,
		FrameCount:       e.frameCount,
		CurrentViseme:    e.current.String(),
		CurrentEmotion:   e.emotion.String(),
		EmotionIntensity: e.intensity,
		AdaptiveScale:    e.volume.Scale(),
		ErrorCount:       e.errorCount,
	}
}
