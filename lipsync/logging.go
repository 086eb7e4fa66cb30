package lipsync

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/time/rate"
)

// InitializeLogging sets the global log level and, when logFile is not
// empty, redirects the default logger to that file. The returned closer
// releases the file and is never nil.
func InitializeLogging(debugMode bool, logFile string) (io.Closer, error) {
	level := log.InfoLevel
	if debugMode {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if logFile == "" {
		log.Debug("Lip-sync logging initialized", "level", level)
		return io.NopCloser(nil), nil
	}

	path, err := homedir.Expand(logFile)
	if err != nil {
		return io.NopCloser(nil), err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return io.NopCloser(nil), err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.NopCloser(nil), err
	}

	log.SetDefault(log.NewWithOptions(file, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	}))
	log.Debug("Lip-sync log file opened", "path", path)
	return file, nil
}

// ThrottledLogger drops log lines above a fixed rate and counts what it
// dropped. It is used on hot paths such as per-frame sink failures.
type ThrottledLogger struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewThrottledLogger allows one line per interval with a small burst.
func NewThrottledLogger(interval time.Duration, burst int) *ThrottledLogger {
	return &ThrottledLogger{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Warn logs msg at warn level if the rate allows it.
func (t *ThrottledLogger) Warn(msg string, keyvals ...any) {
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return
	}
	if n := t.suppressed.Swap(0); n > 0 {
		keyvals = append(keyvals, "suppressed", n)
	}
	log.Warn(msg, keyvals...)
}

// Suppressed returns the number of lines dropped since the last one that
// was written.
func (t *ThrottledLogger) Suppressed() int64 {
	return t.suppressed.Load()
}
