// Package main provides the entry point for the lipsync CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/lipsync/lipsync"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	logFile    string
	backend    string
	metrics    bool

	// cfg is the effective configuration, loaded before any subcommand runs.
	cfg       lipsync.Config
	logCloser io.Closer = io.NopCloser(nil)

	rootCmd = &cobra.Command{
		Use:   "lipsync",
		Short: "Drive a talking face from speech audio",
		Long: paragraph(
			fmt.Sprintf("\nTurn speech audio into %s in real time.", keyword("mouth and face parameters")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := lipsync.LoadConfigFromViper()
	if err != nil {
		return err
	}
	cfg = loaded

	// flags win over the config file
	if cmd.Flags().Changed("debug") {
		cfg.Log.Debug = debug
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File = logFile
	}
	if cmd.Flags().Changed("backend") {
		cfg.Device.Backend = backend
		if err := cfg.Device.Validate(); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled = metrics
	}

	closer, err := lipsync.InitializeLogging(cfg.Log.Debug, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	logCloser = closer
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = logCloser.Close()
		os.Exit(1)
	}
	_ = logCloser.Close()
}

func init() {
	lipsync.SetDefaults()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a file")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "audio backend (auto, oto, mock)")
	rootCmd.PersistentFlags().BoolVar(&metrics, "metrics", false, "print a metrics summary on exit")

	rootCmd.AddCommand(playCmd, streamCmd, analyzeCmd, synthCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "lipsync")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "lipsync")}, dirs...)
	}

	if c := os.Getenv("LIPSYNC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("lipsync")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "lipsync.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
