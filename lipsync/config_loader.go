package lipsync

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the lip-sync configuration from Viper, then
// applies LIPSYNC_* environment overrides.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	loadEngineConfig(&cfg.Engine)
	loadSmootherConfig(&cfg.Smoother)
	loadSchedulerConfig(&cfg.Scheduler)

	// Device settings
	if viper.IsSet("lipsync.device.backend") {
		cfg.Device.Backend = viper.GetString("lipsync.device.backend")
	}
	if viper.IsSet("lipsync.device.buffer_size") {
		cfg.Device.BufferSize = viper.GetInt("lipsync.device.buffer_size")
	}

	// Logging and metrics
	if viper.IsSet("lipsync.log.debug") {
		cfg.Log.Debug = viper.GetBool("lipsync.log.debug")
	}
	if viper.IsSet("lipsync.log.file") {
		cfg.Log.File = viper.GetString("lipsync.log.file")
	}
	if viper.IsSet("lipsync.metrics.enabled") {
		cfg.Metrics.Enabled = viper.GetBool("lipsync.metrics.enabled")
	}

	if err := ApplyEnv(&cfg, nil); err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}

	// Validate the loaded configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid lip-sync configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with the LIPSYNC_* variables that are actually
// set. envDefault values are not applied, so values from the config file
// survive. A nil environ reads the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{
		// no such tag, so unset variables leave fields alone
		DefaultValueTagName: "envOverrideDefault",
	}
	if environ != nil {
		opts.Environment = environ
	}
	return env.ParseWithOptions(cfg, opts)
}

// LoadConfigFromEnv builds a configuration from the environment alone,
// falling back to the envDefault tags.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid lip-sync configuration: %w", err)
	}
	return cfg, nil
}

func loadEngineConfig(cfg *EngineConfig) {
	if viper.IsSet("lipsync.engine.sample_rate") {
		cfg.SampleRate = viper.GetInt("lipsync.engine.sample_rate")
	}
	if viper.IsSet("lipsync.engine.target_fps") {
		cfg.TargetFPS = viper.GetFloat64("lipsync.engine.target_fps")
	}
	if viper.IsSet("lipsync.engine.silence_threshold") {
		cfg.SilenceThreshold = viper.GetFloat64("lipsync.engine.silence_threshold")
	}
	if viper.IsSet("lipsync.engine.auto_emotion") {
		cfg.AutoEmotion = viper.GetBool("lipsync.engine.auto_emotion")
	}
	if viper.IsSet("lipsync.engine.emotion") {
		cfg.Emotion = viper.GetString("lipsync.engine.emotion")
	}
	if viper.IsSet("lipsync.engine.emotion_intensity") {
		cfg.EmotionIntensity = viper.GetFloat64("lipsync.engine.emotion_intensity")
	}
}

func loadSmootherConfig(cfg *SmootherConfig) {
	if viper.IsSet("lipsync.smoother.alpha_open") {
		cfg.AlphaOpen = viper.GetFloat64("lipsync.smoother.alpha_open")
	}
	if viper.IsSet("lipsync.smoother.alpha_form") {
		cfg.AlphaForm = viper.GetFloat64("lipsync.smoother.alpha_form")
	}
	if viper.IsSet("lipsync.smoother.alpha_smile") {
		cfg.AlphaSmile = viper.GetFloat64("lipsync.smoother.alpha_smile")
	}
	if viper.IsSet("lipsync.smoother.history_size") {
		cfg.HistorySize = viper.GetInt("lipsync.smoother.history_size")
	}
	if viper.IsSet("lipsync.smoother.min_history") {
		cfg.MinHistory = viper.GetInt("lipsync.smoother.min_history")
	}
	if viper.IsSet("lipsync.smoother.initial_scale") {
		cfg.InitialScale = viper.GetFloat64("lipsync.smoother.initial_scale")
	}
}

func loadSchedulerConfig(cfg *SchedulerConfig) {
	if viper.IsSet("lipsync.scheduler.output_sample_rate") {
		cfg.OutputSampleRate = viper.GetInt("lipsync.scheduler.output_sample_rate")
	}
	if viper.IsSet("lipsync.scheduler.input_sample_rate") {
		cfg.InputSampleRate = viper.GetInt("lipsync.scheduler.input_sample_rate")
	}
	if viper.IsSet("lipsync.scheduler.chunk_ms") {
		cfg.ChunkMS = viper.GetInt("lipsync.scheduler.chunk_ms")
	}
	if viper.IsSet("lipsync.scheduler.ring_capacity") {
		cfg.RingCapacity = viper.GetInt("lipsync.scheduler.ring_capacity")
	}
	if viper.IsSet("lipsync.scheduler.tick_rate") {
		cfg.TickRate = viper.GetFloat64("lipsync.scheduler.tick_rate")
	}
	if viper.IsSet("lipsync.scheduler.vad_threshold") {
		cfg.VADThreshold = viper.GetFloat64("lipsync.scheduler.vad_threshold")
	}
	if viper.IsSet("lipsync.scheduler.queue_capacity") {
		cfg.QueueCapacity = viper.GetInt("lipsync.scheduler.queue_capacity")
	}
	if viper.IsSet("lipsync.scheduler.queue_memory_limit") {
		cfg.QueueMemoryLimit = viper.GetInt64("lipsync.scheduler.queue_memory_limit")
	}

	loadDuration("lipsync.scheduler.fixed_delay", &cfg.FixedDelay)
	loadDuration("lipsync.scheduler.queue_timeout", &cfg.QueueTimeout)
	loadDuration("lipsync.scheduler.end_idle", &cfg.EndIdle)
	loadDuration("lipsync.scheduler.force_idle", &cfg.ForceIdle)
	loadDuration("lipsync.scheduler.mic_cooldown", &cfg.MicCooldown)
	loadDuration("lipsync.scheduler.silence_skip_after", &cfg.SilenceSkipAfter)
	loadDuration("lipsync.scheduler.join_timeout", &cfg.JoinTimeout)
}

func loadDuration(key string, dst *time.Duration) {
	if !viper.IsSet(key) {
		return
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		*dst = d
	}
}

// FixedDelayFromViper returns the current fixed delay setting, or fallback
// when it is unset or malformed. It is used on config reloads.
func FixedDelayFromViper(fallback time.Duration) time.Duration {
	d := fallback
	loadDuration("lipsync.scheduler.fixed_delay", &d)
	return d
}

// SetDefaults sets default values in Viper for the lip-sync configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	// Engine settings
	viper.SetDefault("lipsync.engine.sample_rate", defaults.Engine.SampleRate)
	viper.SetDefault("lipsync.engine.target_fps", defaults.Engine.TargetFPS)
	viper.SetDefault("lipsync.engine.silence_threshold", defaults.Engine.SilenceThreshold)
	viper.SetDefault("lipsync.engine.auto_emotion", defaults.Engine.AutoEmotion)
	viper.SetDefault("lipsync.engine.emotion", defaults.Engine.Emotion)
	viper.SetDefault("lipsync.engine.emotion_intensity", defaults.Engine.EmotionIntensity)

	// Smoother settings
	viper.SetDefault("lipsync.smoother.alpha_open", defaults.Smoother.AlphaOpen)
	viper.SetDefault("lipsync.smoother.alpha_form", defaults.Smoother.AlphaForm)
	viper.SetDefault("lipsync.smoother.alpha_smile", defaults.Smoother.AlphaSmile)
	viper.SetDefault("lipsync.smoother.history_size", defaults.Smoother.HistorySize)
	viper.SetDefault("lipsync.smoother.min_history", defaults.Smoother.MinHistory)
	viper.SetDefault("lipsync.smoother.initial_scale", defaults.Smoother.InitialScale)

	// Scheduler settings
	s := defaults.Scheduler
	viper.SetDefault("lipsync.scheduler.output_sample_rate", s.OutputSampleRate)
	viper.SetDefault("lipsync.scheduler.input_sample_rate", s.InputSampleRate)
	viper.SetDefault("lipsync.scheduler.chunk_ms", s.ChunkMS)
	viper.SetDefault("lipsync.scheduler.ring_capacity", s.RingCapacity)
	viper.SetDefault("lipsync.scheduler.fixed_delay", s.FixedDelay.String())
	viper.SetDefault("lipsync.scheduler.tick_rate", s.TickRate)
	viper.SetDefault("lipsync.scheduler.queue_timeout", s.QueueTimeout.String())
	viper.SetDefault("lipsync.scheduler.end_idle", s.EndIdle.String())
	viper.SetDefault("lipsync.scheduler.force_idle", s.ForceIdle.String())
	viper.SetDefault("lipsync.scheduler.mic_cooldown", s.MicCooldown.String())
	viper.SetDefault("lipsync.scheduler.vad_threshold", s.VADThreshold)
	viper.SetDefault("lipsync.scheduler.silence_skip_after", s.SilenceSkipAfter.String())
	viper.SetDefault("lipsync.scheduler.queue_capacity", s.QueueCapacity)
	viper.SetDefault("lipsync.scheduler.queue_memory_limit", s.QueueMemoryLimit)
	viper.SetDefault("lipsync.scheduler.join_timeout", s.JoinTimeout.String())

	// Device settings
	viper.SetDefault("lipsync.device.backend", defaults.Device.Backend)
	viper.SetDefault("lipsync.device.buffer_size", defaults.Device.BufferSize)
}
