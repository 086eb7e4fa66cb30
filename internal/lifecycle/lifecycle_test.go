package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func TestManager_ShutdownOrder(t *testing.T) {
	m := NewManager()
	rec := &recorder{}

	for _, name := range []string{"metrics", "mic", "player"} {
		m.Register(Func{
			ComponentName: name,
			ShutdownFunc: func(context.Context) error {
				rec.add(name)
				return nil
			},
		})
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"player", "mic", "metrics"}
	if len(rec.order) != len(want) {
		t.Fatalf("shutdown order = %v, want %v", rec.order, want)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Errorf("shutdown order = %v, want %v", rec.order, want)
			break
		}
	}

	select {
	case <-m.Done():
	default:
		t.Error("Done should be closed after Shutdown")
	}
	if m.Context().Err() == nil {
		t.Error("Context should be cancelled after Shutdown")
	}
}

func TestManager_ForceStop(t *testing.T) {
	m := NewManager()
	forced := false

	m.Register(Func{
		ComponentName: "stuck",
		ShutdownFunc:  func(context.Context) error { return errors.New("timed out") },
		ForceStopFunc: func() error {
			forced = true
			return nil
		},
	})

	if err := m.Shutdown(); err != nil {
		t.Errorf("Shutdown should succeed when force stop succeeds, got %v", err)
	}
	if !forced {
		t.Error("ForceStop was not called")
	}
}

func TestManager_ForceStopFailure(t *testing.T) {
	m := NewManager()
	boom := errors.New("device busy")

	m.Register(Func{
		ComponentName: "device",
		ShutdownFunc:  func(context.Context) error { return errors.New("timed out") },
		ForceStopFunc: func() error { return boom },
	})

	err := m.Shutdown()
	if !errors.Is(err, boom) {
		t.Errorf("Expected error wrapping %v, got %v", boom, err)
	}

	// a second call returns the same result
	if again := m.Shutdown(); !errors.Is(again, boom) {
		t.Errorf("second Shutdown = %v, want %v", again, boom)
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	m := NewManager()
	m.SetForceKillTimeout(50 * time.Millisecond)

	m.Register(Func{
		ComponentName: "slow",
		ShutdownFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		ForceStopFunc: func() error { return nil },
	})

	start := time.Now()
	if err := m.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %v", elapsed)
	}
}

func TestManager_RegisterAfterShutdown(t *testing.T) {
	m := NewManager()
	_ = m.Shutdown()

	called := false
	m.Register(Func{
		ComponentName: "late",
		ShutdownFunc: func(context.Context) error {
			called = true
			return nil
		},
	})
	_ = m.Shutdown()

	if called {
		t.Error("component registered after shutdown should be ignored")
	}
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager()
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after Shutdown")
	}
}

func TestCloser(t *testing.T) {
	closed := 0
	c := Closer("stream", func() error {
		closed++
		return nil
	})

	if c.Name() != "stream" {
		t.Errorf("Name() = %q, want stream", c.Name())
	}
	_ = c.Shutdown(context.Background())
	_ = c.ForceStop()
	if closed != 2 {
		t.Errorf("close called %d times, want 2", closed)
	}
}

func TestResourceMonitor(t *testing.T) {
	rm := NewResourceMonitor(10 * time.Millisecond)
	rm.Start()

	if n := rm.Sample(); n <= 0 {
		t.Errorf("Sample() = %d, want a positive goroutine count", n)
	}
	if rm.PeakGoroutines() <= 0 {
		t.Error("PeakGoroutines should be recorded")
	}

	if err := rm.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if err := rm.ForceStop(); err != nil {
		t.Errorf("ForceStop after Shutdown failed: %v", err)
	}
}
