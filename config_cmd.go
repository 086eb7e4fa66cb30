package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# lipsync configuration
lipsync:
  engine:
    # analysis rate; must match scheduler.output_sample_rate
    sample_rate: 24000
    target_fps: 60
    # RMS below this is treated as silence
    silence_threshold: 50
    # infer emotion from pitch, loudness and speech rate
    auto_emotion: false
    # neutral, happy, sad, angry, surprised or questioning
    emotion: "neutral"
    emotion_intensity: 1.0

  smoother:
    alpha_open: 0.6
    alpha_form: 0.5
    alpha_smile: 1.0
    history_size: 100
    min_history: 20
    initial_scale: 2000

  scheduler:
    output_sample_rate: 24000
    input_sample_rate: 16000
    chunk_ms: 20
    ring_capacity: 50
    # how far behind playback the lip-sync reads; applied live
    fixed_delay: "25ms"
    tick_rate: 60
    queue_timeout: "100ms"
    end_idle: "700ms"
    force_idle: "3s"
    mic_cooldown: "300ms"
    vad_threshold: 0.02
    silence_skip_after: "2s"
    queue_capacity: 500
    # bytes held by each playback queue, 0 for no limit
    queue_memory_limit: 16777216
    join_timeout: "1s"

  device:
    # auto, oto or mock
    backend: "auto"
    # device buffer in milliseconds, 0 for the platform default
    buffer_size: 0

  log:
    debug: false
    # file: "~/.local/state/lipsync/lipsync.log"

  metrics:
    enabled: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the lipsync config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lipsync config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lipsync config\nlipsync config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("lipsync", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
