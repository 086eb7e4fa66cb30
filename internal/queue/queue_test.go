package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_BasicOperations(t *testing.T) {
	q := New[[]byte](10, 0, nil)
	defer q.Close()

	ctx := context.Background()

	// Test empty queue
	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}

	// Test enqueue
	chunk := []byte{1, 2, 3, 4}
	if err := q.Enqueue(ctx, chunk); err != nil {
		t.Errorf("Enqueue failed: %v", err)
	}
	if size := q.Size(); size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}

	// Test dequeue
	dequeued, err := q.Dequeue(ctx)
	if err != nil {
		t.Errorf("Dequeue failed: %v", err)
	}
	if len(dequeued) != 4 || dequeued[3] != 4 {
		t.Errorf("Dequeued wrong chunk: %v", dequeued)
	}
	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue after dequeue, got size %d", size)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New[string](10, 0, nil)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, fmt.Sprintf("c%d", i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if want := fmt.Sprintf("c%d", i); got != want {
			t.Errorf("Dequeue %d = %q, want %q", i, got, want)
		}
	}
}

func TestQueue_Backpressure(t *testing.T) {
	q := New[int](2, 0, nil)
	defer q.Close()

	ctx := context.Background()
	_ = q.Enqueue(ctx, 1)
	_ = q.Enqueue(ctx, 2)

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, 3)
	}()

	select {
	case err := <-done:
		t.Fatalf("Enqueue on a full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("blocked Enqueue failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue was not released")
	}
	if q.Size() != 2 {
		t.Errorf("Expected size 2, got %d", q.Size())
	}
}

func TestQueue_EnqueueContextCancel(t *testing.T) {
	q := New[int](1, 0, nil)
	defer q.Close()

	_ = q.Enqueue(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := q.Enqueue(ctx, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Enqueue took %v to observe cancellation", elapsed)
	}
}

func TestQueue_MemoryLimit(t *testing.T) {
	q := New[[]byte](100, 10, Bytes)
	defer q.Close()

	ctx := context.Background()
	if err := q.Enqueue(ctx, make([]byte, 8)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, make([]byte, 4)); err != ErrQueueFull {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if err := q.Enqueue(ctx, make([]byte, 4)); err != nil {
		t.Errorf("Enqueue after freeing memory failed: %v", err)
	}

	stats := q.Stats()
	if stats.TotalDropped != 1 {
		t.Errorf("TotalDropped = %d, want 1", stats.TotalDropped)
	}
	if stats.CurrentMemory != 4 {
		t.Errorf("CurrentMemory = %d, want 4", stats.CurrentMemory)
	}
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q := New[int](10, 0, nil)
	defer q.Close()

	ctx := context.Background()

	start := time.Now()
	_, ok, err := q.DequeueTimeout(ctx, 30*time.Millisecond)
	if err != nil || ok {
		t.Errorf("DequeueTimeout on empty queue = %v, %v; want false, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("DequeueTimeout returned after %v", elapsed)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(ctx, 42)
	}()
	v, ok, err := q.DequeueTimeout(ctx, time.Second)
	if err != nil || !ok || v != 42 {
		t.Errorf("DequeueTimeout = %d, %v, %v; want 42, true, nil", v, ok, err)
	}

	// a cancelled parent is an error, not a timeout
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := q.DequeueTimeout(cctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected Canceled, got %v", err)
	}
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q := New[int](16, 0, nil)
	defer q.Close()

	ctx := context.Background()
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Enqueue(ctx, p*perProducer+i); err != nil {
					t.Errorf("Enqueue failed: %v", err)
					return
				}
			}
		}(p)
	}

	seen := make(map[int]bool)
	for i := 0; i < producers*perProducer; i++ {
		v, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if seen[v] {
			t.Fatalf("item %d dequeued twice", v)
		}
		seen[v] = true
	}
	wg.Wait()

	if stats := q.Stats(); stats.PeakSize > 16 {
		t.Errorf("PeakSize = %d exceeds capacity", stats.PeakSize)
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[[]byte](3, 1024, Bytes)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = q.Enqueue(ctx, make([]byte, 10))
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(ctx, make([]byte, 10))
	}()
	time.Sleep(20 * time.Millisecond)

	if n := q.Clear(); n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}

	select {
	case err := <-blocked:
		if err != nil {
			t.Errorf("Enqueue after Clear failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Clear did not release the blocked producer")
	}

	stats := q.Stats()
	if stats.TotalCleared != 3 {
		t.Errorf("TotalCleared = %d, want 3", stats.TotalCleared)
	}
	if stats.CurrentSize != 1 || stats.CurrentMemory != 10 {
		t.Errorf("CurrentSize = %d, CurrentMemory = %d; want 1 and 10", stats.CurrentSize, stats.CurrentMemory)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := New[string](10, 0, nil)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = q.Enqueue(ctx, "x")
	}
	_, _ = q.Dequeue(ctx)

	stats := q.Stats()
	if stats.TotalEnqueued != 4 {
		t.Errorf("TotalEnqueued = %d, want 4", stats.TotalEnqueued)
	}
	if stats.TotalDequeued != 1 {
		t.Errorf("TotalDequeued = %d, want 1", stats.TotalDequeued)
	}
	if stats.PeakSize != 4 || stats.CurrentSize != 3 {
		t.Errorf("PeakSize = %d, CurrentSize = %d; want 4 and 3", stats.PeakSize, stats.CurrentSize)
	}
	if stats.LastEnqueue.IsZero() || stats.LastDequeue.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestQueue_CloseHandling(t *testing.T) {
	q := New[int](10, 0, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-done:
		if err != ErrQueueClosed {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the consumer")
	}

	if err := q.Enqueue(ctx, 1); err != ErrQueueClosed {
		t.Errorf("Expected ErrQueueClosed on Enqueue, got %v", err)
	}
	if _, ok, err := q.DequeueTimeout(ctx, time.Millisecond); ok || err != ErrQueueClosed {
		t.Errorf("Expected ErrQueueClosed on DequeueTimeout, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func BenchmarkQueue_EnqueueDequeue(b *testing.B) {
	q := New[[]byte](1000, 0, nil)
	defer q.Close()

	ctx := context.Background()
	chunk := make([]byte, 960)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Enqueue(ctx, chunk)
		_, _ = q.Dequeue(ctx)
	}
}
