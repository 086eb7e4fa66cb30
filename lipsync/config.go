package lipsync

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync/emotion"
)

// Config contains all lip-sync configuration options.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Smoother  SmootherConfig  `yaml:"smoother"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Device    DeviceConfig    `yaml:"device"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EngineConfig configures the per-frame analysis.
type EngineConfig struct {
	SampleRate       int     `yaml:"sample_rate" env:"LIPSYNC_ENGINE_SAMPLE_RATE" envDefault:"24000"`
	TargetFPS        float64 `yaml:"target_fps" env:"LIPSYNC_ENGINE_TARGET_FPS" envDefault:"60"`
	SilenceThreshold float64 `yaml:"silence_threshold" env:"LIPSYNC_ENGINE_SILENCE_THRESHOLD" envDefault:"50"`
	AutoEmotion      bool    `yaml:"auto_emotion" env:"LIPSYNC_ENGINE_AUTO_EMOTION" envDefault:"false"`
	Emotion          string  `yaml:"emotion" env:"LIPSYNC_ENGINE_EMOTION" envDefault:"neutral"`
	EmotionIntensity float64 `yaml:"emotion_intensity" env:"LIPSYNC_ENGINE_EMOTION_INTENSITY" envDefault:"1.0"`
}

// SmootherConfig configures smoothing and the adaptive volume scale.
type SmootherConfig struct {
	AlphaOpen    float64 `yaml:"alpha_open" env:"LIPSYNC_SMOOTHER_ALPHA_OPEN" envDefault:"0.6"`
	AlphaForm    float64 `yaml:"alpha_form" env:"LIPSYNC_SMOOTHER_ALPHA_FORM" envDefault:"0.5"`
	AlphaSmile   float64 `yaml:"alpha_smile" env:"LIPSYNC_SMOOTHER_ALPHA_SMILE" envDefault:"1.0"`
	HistorySize  int     `yaml:"history_size" env:"LIPSYNC_SMOOTHER_HISTORY_SIZE" envDefault:"100"`
	MinHistory   int     `yaml:"min_history" env:"LIPSYNC_SMOOTHER_MIN_HISTORY" envDefault:"20"`
	InitialScale float64 `yaml:"initial_scale" env:"LIPSYNC_SMOOTHER_INITIAL_SCALE" envDefault:"2000"`
}

// SchedulerConfig configures playback and the lip-sync worker.
type SchedulerConfig struct {
	OutputSampleRate int           `yaml:"output_sample_rate" env:"LIPSYNC_SCHEDULER_OUTPUT_SAMPLE_RATE" envDefault:"24000"`
	InputSampleRate  int           `yaml:"input_sample_rate" env:"LIPSYNC_SCHEDULER_INPUT_SAMPLE_RATE" envDefault:"16000"`
	ChunkMS          int           `yaml:"chunk_ms" env:"LIPSYNC_SCHEDULER_CHUNK_MS" envDefault:"20"`
	RingCapacity     int           `yaml:"ring_capacity" env:"LIPSYNC_SCHEDULER_RING_CAPACITY" envDefault:"50"`
	FixedDelay       time.Duration `yaml:"fixed_delay" env:"LIPSYNC_SCHEDULER_FIXED_DELAY" envDefault:"25ms"`
	TickRate         float64       `yaml:"tick_rate" env:"LIPSYNC_SCHEDULER_TICK_RATE" envDefault:"60"`
	QueueTimeout     time.Duration `yaml:"queue_timeout" env:"LIPSYNC_SCHEDULER_QUEUE_TIMEOUT" envDefault:"100ms"`
	EndIdle          time.Duration `yaml:"end_idle" env:"LIPSYNC_SCHEDULER_END_IDLE" envDefault:"700ms"`
	ForceIdle        time.Duration `yaml:"force_idle" env:"LIPSYNC_SCHEDULER_FORCE_IDLE" envDefault:"3s"`
	MicCooldown      time.Duration `yaml:"mic_cooldown" env:"LIPSYNC_SCHEDULER_MIC_COOLDOWN" envDefault:"300ms"`
	VADThreshold     float64       `yaml:"vad_threshold" env:"LIPSYNC_SCHEDULER_VAD_THRESHOLD" envDefault:"0.02"`
	SilenceSkipAfter time.Duration `yaml:"silence_skip_after" env:"LIPSYNC_SCHEDULER_SILENCE_SKIP_AFTER" envDefault:"2s"`
	QueueCapacity    int           `yaml:"queue_capacity" env:"LIPSYNC_SCHEDULER_QUEUE_CAPACITY" envDefault:"500"`
	QueueMemoryLimit int64         `yaml:"queue_memory_limit" env:"LIPSYNC_SCHEDULER_QUEUE_MEMORY_LIMIT" envDefault:"16777216"`
	JoinTimeout      time.Duration `yaml:"join_timeout" env:"LIPSYNC_SCHEDULER_JOIN_TIMEOUT" envDefault:"1s"`
}

// DeviceConfig selects the audio backend.
type DeviceConfig struct {
	Backend    string `yaml:"backend" env:"LIPSYNC_DEVICE_BACKEND" envDefault:"auto"`
	BufferSize int    `yaml:"buffer_size" env:"LIPSYNC_DEVICE_BUFFER_SIZE" envDefault:"0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug bool   `yaml:"debug" env:"LIPSYNC_LOG_DEBUG" envDefault:"false"`
	File  string `yaml:"file" env:"LIPSYNC_LOG_FILE"`
}

// MetricsConfig toggles OpenTelemetry instruments.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"LIPSYNC_METRICS_ENABLED" envDefault:"false"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:    DefaultEngineConfig(),
		Smoother:  DefaultSmootherConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Device: DeviceConfig{
			Backend: "auto",
		},
	}
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:       24000,
		TargetFPS:        60,
		SilenceThreshold: 50,
		Emotion:          "neutral",
		EmotionIntensity: 1.0,
	}
}

// DefaultSmootherConfig returns the default smoother settings.
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{
		AlphaOpen:    0.6,
		AlphaForm:    0.5,
		AlphaSmile:   1.0,
		HistorySize:  100,
		MinHistory:   20,
		InitialScale: 2000,
	}
}

// DefaultSchedulerConfig returns the default scheduler settings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		OutputSampleRate: 24000,
		InputSampleRate:  16000,
		ChunkMS:          20,
		RingCapacity:     50,
		FixedDelay:       25 * time.Millisecond,
		TickRate:         60,
		QueueTimeout:     100 * time.Millisecond,
		EndIdle:          700 * time.Millisecond,
		ForceIdle:        3 * time.Second,
		MicCooldown:      300 * time.Millisecond,
		VADThreshold:     0.02,
		SilenceSkipAfter: 2 * time.Second,
		QueueCapacity:    500,
		QueueMemoryLimit: 16 << 20,
		JoinTimeout:      time.Second,
	}
}

var validSampleRates = []int{8000, 16000, 22050, 24000, 44100, 48000}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Smoother.Validate(); err != nil {
		return fmt.Errorf("smoother config: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}
	return nil
}

// Validate checks the engine settings.
func (c *EngineConfig) Validate() error {
	if !slices.Contains(validSampleRates, c.SampleRate) {
		return fmt.Errorf("%w %d: must be one of %v", ErrInvalidSampleRate, c.SampleRate, validSampleRates)
	}
	if c.TargetFPS <= 0 || c.TargetFPS > 240 {
		return fmt.Errorf("%w: target_fps must be between 1 and 240, got %f", ErrInvalidConfig, c.TargetFPS)
	}
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("%w: silence_threshold must be positive, got %f", ErrInvalidConfig, c.SilenceThreshold)
	}
	if c.EmotionIntensity < 0 || c.EmotionIntensity > 1 {
		return fmt.Errorf("%w: emotion_intensity must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.EmotionIntensity)
	}
	e, err := emotion.Resolve(c.Emotion)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownEmotion, err)
	}
	c.Emotion = e.String()
	return nil
}

// Validate checks the smoother settings.
func (c *SmootherConfig) Validate() error {
	for name, a := range map[string]float64{
		"alpha_open":  c.AlphaOpen,
		"alpha_form":  c.AlphaForm,
		"alpha_smile": c.AlphaSmile,
	} {
		if a <= 0 || a > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %f", ErrInvalidConfig, name, a)
		}
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history_size must be positive, got %d", ErrInvalidConfig, c.HistorySize)
	}
	if c.MinHistory < 1 || c.MinHistory > c.HistorySize {
		return fmt.Errorf("%w: min_history must be between 1 and history_size, got %d", ErrInvalidConfig, c.MinHistory)
	}
	if c.InitialScale < 1000 {
		return fmt.Errorf("%w: initial_scale must be at least 1000, got %f", ErrInvalidConfig, c.InitialScale)
	}
	return nil
}

// Validate checks the scheduler settings.
func (c *SchedulerConfig) Validate() error {
	if !slices.Contains(validSampleRates, c.OutputSampleRate) {
		return fmt.Errorf("%w %d: output_sample_rate must be one of %v", ErrInvalidSampleRate, c.OutputSampleRate, validSampleRates)
	}
	if !slices.Contains(validSampleRates, c.InputSampleRate) {
		return fmt.Errorf("%w %d: input_sample_rate must be one of %v", ErrInvalidSampleRate, c.InputSampleRate, validSampleRates)
	}
	if c.ChunkMS < 5 || c.ChunkMS > 200 {
		return fmt.Errorf("%w: chunk_ms must be between 5 and 200, got %d", ErrInvalidConfig, c.ChunkMS)
	}
	if c.RingCapacity < 1 {
		return fmt.Errorf("%w: ring_capacity must be positive, got %d", ErrInvalidConfig, c.RingCapacity)
	}
	if c.FixedDelay < 0 || c.FixedDelay > time.Second {
		return fmt.Errorf("%w: fixed_delay must be between 0 and 1s, got %v", ErrInvalidConfig, c.FixedDelay)
	}
	if c.TickRate <= 0 || c.TickRate > 240 {
		return fmt.Errorf("%w: tick_rate must be between 1 and 240, got %f", ErrInvalidConfig, c.TickRate)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("%w: queue_timeout must be positive, got %v", ErrInvalidConfig, c.QueueTimeout)
	}
	if c.EndIdle <= 0 || c.ForceIdle < c.EndIdle {
		return fmt.Errorf("%w: need 0 < end_idle <= force_idle, got %v and %v", ErrInvalidConfig, c.EndIdle, c.ForceIdle)
	}
	if c.VADThreshold < 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("%w: vad_threshold must be in [0, 1), got %f", ErrInvalidConfig, c.VADThreshold)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue_capacity must be positive, got %d", ErrInvalidConfig, c.QueueCapacity)
	}
	if c.QueueMemoryLimit < 0 {
		return fmt.Errorf("%w: queue_memory_limit must not be negative, got %d", ErrInvalidConfig, c.QueueMemoryLimit)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("%w: join_timeout must be positive, got %v", ErrInvalidConfig, c.JoinTimeout)
	}
	return nil
}

// ChunkSamples returns the number of output samples in one chunk.
func (c SchedulerConfig) ChunkSamples() int {
	return c.OutputSampleRate * c.ChunkMS / 1000
}

// InputChunkSamples returns the number of input samples in one mic frame.
func (c SchedulerConfig) InputChunkSamples() int {
	return c.InputSampleRate * c.ChunkMS / 1000
}

// TickInterval returns the lip-sync worker period.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}

// Backends understood by the device factory.
var validBackends = []string{"auto", "oto", "mock"}

// Validate checks the device settings.
func (c *DeviceConfig) Validate() error {
	b := strings.ToLower(c.Backend)
	if !slices.Contains(validBackends, b) {
		return fmt.Errorf("%w: backend %q must be one of %v", ErrInvalidConfig, c.Backend, validBackends)
	}
	c.Backend = b
	if c.BufferSize < 0 {
		return fmt.Errorf("%w: buffer_size must not be negative, got %d", ErrInvalidConfig, c.BufferSize)
	}
	return nil
}
