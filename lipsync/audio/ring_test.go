package audio_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync/audio"
)

// chunk returns a chunk of size samples all set to v.
func chunk(v int16, size int) []int16 {
	c := make([]int16, size)
	for i := range c {
		c[i] = v
	}
	return c
}

// TestRingCreation tests ring creation with various configurations.
func TestRingCreation(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		chunkSize int
		wantChunk int
	}{
		{"explicit", 10, 480, 480},
		{"zero capacity uses default", 0, 480, 480},
		{"zero chunk size", 5, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := audio.NewRing(tt.capacity, tt.chunkSize)
			if r.ChunkSize() != tt.wantChunk {
				t.Errorf("ChunkSize() = %d, want %d", r.ChunkSize(), tt.wantChunk)
			}
			if r.Len() != 0 {
				t.Errorf("Len() = %d, want 0", r.Len())
			}
			if _, ok := r.Start(); ok {
				t.Error("new ring should have no start time")
			}
			if _, ok := r.ChunkAt(0); ok {
				t.Error("ChunkAt on an empty ring should report false")
			}
		})
	}
}

// TestRingDefaultCapacity tests that the default ring holds 50 chunks.
func TestRingDefaultCapacity(t *testing.T) {
	r := audio.NewRing(0, 4)
	now := time.Now()
	for i := 0; i < 60; i++ {
		r.Append(chunk(int16(i), 4), now)
	}
	if r.Len() != audio.DefaultRingCapacity {
		t.Errorf("Len() = %d, want %d", r.Len(), audio.DefaultRingCapacity)
	}
	if r.Counter() != 60 {
		t.Errorf("Counter() = %d, want 60", r.Counter())
	}
}

// TestRingAppendStart tests that only the first append records the start.
func TestRingAppendStart(t *testing.T) {
	r := audio.NewRing(3, 4)
	t0 := time.Unix(100, 0)

	if !r.Append(chunk(1, 4), t0) {
		t.Error("first Append should report true")
	}
	if r.Append(chunk(2, 4), t0.Add(time.Second)) {
		t.Error("second Append should report false")
	}

	start, ok := r.Start()
	if !ok || !start.Equal(t0) {
		t.Errorf("Start() = %v, %v; want %v, true", start, ok, t0)
	}
}

// TestRingChunkAt tests position lookup across a ring that has dropped
// its oldest chunks.
func TestRingChunkAt(t *testing.T) {
	r := audio.NewRing(3, 4)
	now := time.Now()
	for i := 0; i < 5; i++ {
		r.Append(chunk(int16(i), 4), now)
	}
	// ring holds chunks 2, 3 and 4

	tests := []struct {
		name string
		pos  int64
		want int16
	}{
		{"negative maps to oldest", -5, 2},
		{"dropped chunk maps to oldest", 0, 2},
		{"oldest held", 8, 2},
		{"middle", 13, 3},
		{"newest", 19, 4},
		{"end of audio", 20, 4},
		{"past the end", 1000, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ChunkAt(tt.pos)
			if !ok {
				t.Fatal("ChunkAt reported false")
			}
			if len(got) != 4 || got[0] != tt.want {
				t.Errorf("ChunkAt(%d) = %v, want chunk %d", tt.pos, got, tt.want)
			}
		})
	}
}

// TestRingChunkAtCopies tests that callers cannot modify the ring.
func TestRingChunkAtCopies(t *testing.T) {
	r := audio.NewRing(2, 4)
	r.Append(chunk(7, 4), time.Now())

	got, _ := r.ChunkAt(0)
	got[0] = 99

	again, _ := r.ChunkAt(0)
	if again[0] != 7 {
		t.Errorf("ring chunk modified through ChunkAt result: %v", again)
	}
}

// TestRingShortChunk tests that a short final chunk is returned as is.
func TestRingShortChunk(t *testing.T) {
	r := audio.NewRing(5, 4)
	now := time.Now()
	r.Append(chunk(1, 4), now)
	r.Append(chunk(2, 2), now)

	got, ok := r.ChunkAt(7)
	if !ok || len(got) != 2 || got[0] != 2 {
		t.Errorf("ChunkAt(7) = %v, %v; want the 2-sample chunk", got, ok)
	}
}

// TestRingClear tests that Clear resets chunks, counter and start time.
func TestRingClear(t *testing.T) {
	r := audio.NewRing(3, 4)
	now := time.Now()
	for i := 0; i < 4; i++ {
		r.Append(chunk(int16(i), 4), now)
	}

	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
	if r.Counter() != 0 {
		t.Errorf("Counter() after Clear = %d, want 0", r.Counter())
	}
	if _, ok := r.Start(); ok {
		t.Error("Start() should be unset after Clear")
	}
	if !r.Append(chunk(9, 4), now) {
		t.Error("first Append after Clear should report true")
	}
	if got, _ := r.ChunkAt(0); got[0] != 9 {
		t.Errorf("ChunkAt(0) after Clear = %v, want chunk 9", got)
	}
}

// TestRingStats tests ring statistics.
func TestRingStats(t *testing.T) {
	r := audio.NewRing(3, 4)
	now := time.Now()
	for i := 0; i < 5; i++ {
		r.Append(chunk(int16(i), 4), now)
	}

	stats := r.Stats()
	if stats.TotalAdded != 5 {
		t.Errorf("TotalAdded = %d, want 5", stats.TotalAdded)
	}
	if stats.TotalDropped != 2 {
		t.Errorf("TotalDropped = %d, want 2", stats.TotalDropped)
	}
	if stats.CurrentSize != 3 || stats.PeakSize != 3 {
		t.Errorf("CurrentSize = %d, PeakSize = %d, want 3 and 3", stats.CurrentSize, stats.PeakSize)
	}
	if stats.Counter != 5 {
		t.Errorf("Counter = %d, want 5", stats.Counter)
	}
	if s := stats.String(); s == "" {
		t.Error("String() should not be empty")
	}
}

// TestRingConcurrency tests concurrent appends and lookups.
func TestRingConcurrency(t *testing.T) {
	r := audio.NewRing(10, 4)
	now := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Append(chunk(int16(i), 4), now)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if c, ok := r.ChunkAt(int64(i * 4)); ok && len(c) != 4 {
					t.Errorf("ChunkAt returned %d samples", len(c))
				}
			}
		}()
	}
	wg.Wait()

	if r.Counter() != 400 {
		t.Errorf("Counter() = %d, want 400", r.Counter())
	}
	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
}
