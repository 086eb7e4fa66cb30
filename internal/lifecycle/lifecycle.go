// Package lifecycle coordinates graceful shutdown of long-lived lip-sync
// components such as players, microphones and metric providers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// DefaultForceKillTimeout bounds the graceful phase of Shutdown.
const DefaultForceKillTimeout = 5 * time.Second

// Component is something that needs cleanup on shutdown.
type Component interface {
	// Name returns the component name for logging
	Name() string

	// Shutdown performs graceful shutdown
	Shutdown(ctx context.Context) error

	// ForceStop performs immediate termination if graceful shutdown fails
	ForceStop() error
}

// Manager shuts registered components down in reverse order of
// registration when a signal arrives or Shutdown is called.
type Manager struct {
	mu               sync.Mutex
	components       []Component
	shutdownCh       chan struct{}
	done             chan struct{}
	wg               sync.WaitGroup
	isShutdown       bool
	err              error
	forceKillTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a lifecycle manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		shutdownCh:       make(chan struct{}),
		done:             make(chan struct{}),
		forceKillTimeout: DefaultForceKillTimeout,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// SetForceKillTimeout changes how long components get to stop gracefully.
func (m *Manager) SetForceKillTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.forceKillTimeout = d
	}
}

// Context is cancelled as soon as shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a component to lifecycle management.
func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isShutdown {
		log.Warn("Cannot register component during shutdown", "component", c.Name())
		return
	}

	m.components = append(m.components, c)
	log.Debug("Registered lifecycle component", "name", c.Name())
}

// Start begins monitoring for SIGINT and SIGTERM.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.monitorSignals()
}

func (m *Manager) monitorSignals() {
	defer m.wg.Done()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", "signal", sig)
		go func() { _ = m.Shutdown() }()
	case <-m.shutdownCh:
		log.Debug("Shutdown initiated programmatically")
	}
}

// Shutdown stops every component. A component whose graceful shutdown
// fails is force-stopped. Calling Shutdown again waits for the first call
// and returns its result.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.isShutdown {
		m.mu.Unlock()
		<-m.done
		return m.err
	}
	m.isShutdown = true
	components := append([]Component(nil), m.components...)
	timeout := m.forceKillTimeout
	m.mu.Unlock()

	log.Debug("Starting graceful shutdown", "components", len(components))
	m.cancel()
	close(m.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		log.Debug("Shutting down component", "name", c.Name())

		if err := c.Shutdown(ctx); err != nil {
			log.Warn("Component graceful shutdown failed",
				"name", c.Name(),
				"error", err)

			if forceErr := c.ForceStop(); forceErr != nil {
				log.Error("Component force stop failed",
					"name", c.Name(),
					"error", forceErr)
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), forceErr))
			}
		}
	}

	// Wait for the signal monitor with timeout
	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		log.Debug("Graceful shutdown complete")
	case <-time.After(2 * time.Second):
		log.Warn("Timeout waiting for goroutines to finish")
	}

	m.err = errors.Join(errs...)
	close(m.done)
	return m.err
}

// Done is closed when shutdown has completed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until shutdown is complete.
func (m *Manager) Wait() {
	<-m.done
}

// Func adapts plain functions to a Component. A nil ForceStopFunc falls
// back to ShutdownFunc with a background context.
type Func struct {
	ComponentName string
	ShutdownFunc  func(ctx context.Context) error
	ForceStopFunc func() error
}

// Name returns the component name.
func (f Func) Name() string { return f.ComponentName }

// Shutdown calls ShutdownFunc.
func (f Func) Shutdown(ctx context.Context) error {
	if f.ShutdownFunc == nil {
		return nil
	}
	return f.ShutdownFunc(ctx)
}

// ForceStop calls ForceStopFunc.
func (f Func) ForceStop() error {
	if f.ForceStopFunc != nil {
		return f.ForceStopFunc()
	}
	if f.ShutdownFunc != nil {
		return f.ShutdownFunc(context.Background())
	}
	return nil
}

// Closer wraps an io.Closer style value as a Component.
func Closer(name string, close func() error) Component {
	return Func{
		ComponentName: name,
		ShutdownFunc:  func(context.Context) error { return close() },
	}
}

// ResourceMonitor logs goroutine and heap usage periodically. It helps
// spot goroutine leaks across repeated playback sessions.
type ResourceMonitor struct {
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	once     sync.Once

	mu             sync.Mutex
	peakGoroutines int
}

// NewResourceMonitor creates a monitor that samples every interval.
func NewResourceMonitor(interval time.Duration) *ResourceMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ResourceMonitor{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins resource monitoring.
func (rm *ResourceMonitor) Start() {
	rm.ticker = time.NewTicker(rm.interval)
	go rm.monitor()
}

func (rm *ResourceMonitor) monitor() {
	for {
		select {
		case <-rm.ticker.C:
			rm.Sample()
		case <-rm.done:
			return
		}
	}
}

// Sample logs current usage and returns the goroutine count.
func (rm *ResourceMonitor) Sample() int {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	n := runtime.NumGoroutine()

	rm.mu.Lock()
	rm.peakGoroutines = max(rm.peakGoroutines, n)
	peak := rm.peakGoroutines
	rm.mu.Unlock()

	log.Debug("Resource check",
		"goroutines", n,
		"peak_goroutines", peak,
		"heap", humanize.Bytes(ms.HeapAlloc))
	return n
}

// PeakGoroutines returns the highest goroutine count sampled.
func (rm *ResourceMonitor) PeakGoroutines() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.peakGoroutines
}

// Name returns the component name.
func (rm *ResourceMonitor) Name() string {
	return "Resource Monitor"
}

// Shutdown stops the monitor.
func (rm *ResourceMonitor) Shutdown(context.Context) error {
	rm.once.Do(func() {
		if rm.ticker != nil {
			rm.ticker.Stop()
		}
		close(rm.done)
	})
	return nil
}

// ForceStop stops the monitor.
func (rm *ResourceMonitor) ForceStop() error {
	return rm.Shutdown(context.Background())
}
