package ui

import "time"

// Config contains meter-specific configuration.
type Config struct {
	// Width of each bar in cells
	Width int `env:"LIPSYNC_METER_WIDTH" envDefault:"40"`
	// How often engine statistics are refreshed
	StatsInterval time.Duration `env:"LIPSYNC_METER_STATS_INTERVAL" envDefault:"250ms"`
	AltScreen     bool          `env:"LIPSYNC_METER_ALT_SCREEN" envDefault:"false"`

	// Shown above the bars, usually the file being played
	Title string

	// Quit once playback reports it is done
	ExitOnDone bool
}
