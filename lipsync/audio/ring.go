package audio

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultRingCapacity holds about one second of 20 ms chunks.
const DefaultRingCapacity = 50

// RingStats tracks ring activity.
type RingStats struct {
	TotalAdded   uint64
	TotalDropped uint64
	CurrentSize  int
	PeakSize     int
	Counter      int64
}

// Ring is the sliding window of recently played chunks. It keeps the last
// capacity chunks in playback order together with the number of chunks
// appended since the last Clear and the time the first of them started
// playing. All three are guarded by one mutex. When full, Append drops the
// oldest chunk.
type Ring struct {
	mu        sync.Mutex
	items     [][]int16
	capacity  int
	chunkSize int
	head      int // write position
	tail      int // read position
	size      int
	counter   int64
	start     time.Time
	stats     RingStats
}

// NewRing creates a ring of capacity chunks of chunkSize samples.
func NewRing(capacity, chunkSize int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Ring{
		items:     make([][]int16, capacity),
		capacity:  capacity,
		chunkSize: chunkSize,
	}
}

// Append adds chunk as the next played chunk. The first append after a
// Clear records now as the playback start and reports true.
func (r *Ring) Append(chunk []int16, now time.Time) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.start.IsZero() {
		r.start = now
		first = true
	}
	if r.size == r.capacity {
		r.dropOldest()
	}

	r.items[r.head] = chunk
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.counter++

	r.stats.TotalAdded++
	r.stats.PeakSize = max(r.stats.PeakSize, r.size)
	return first
}

// ChunkAt returns a copy of the chunk that plays at sample position pos,
// counted from the playback start. Positions past the audio received so
// far map to the newest chunk and positions older than the ring map to the
// oldest. It reports false when the ring is empty.
func (r *Ring) ChunkAt(pos int64) ([]int16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil, false
	}

	size := int64(r.chunkSize)
	pos = min(max(pos, 0), r.counter*size)
	idx := min(pos/size, r.counter-1)

	// the oldest element in the ring is chunk number counter-size
	rel := idx - (r.counter - int64(r.size))
	rel = min(max(rel, 0), int64(r.size-1))

	return slices.Clone(r.items[(r.tail+int(rel))%r.capacity]), true
}

// Start returns the playback start time and whether it is set.
func (r *Ring) Start() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start, !r.start.IsZero()
}

// Len returns the number of chunks held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Counter returns the number of chunks appended since the last Clear.
func (r *Ring) Counter() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// ChunkSize returns the nominal chunk length in samples.
func (r *Ring) ChunkSize() int {
	return r.chunkSize
}

// Clear drops every chunk and resets the counter and start time.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.items)
	r.head, r.tail, r.size = 0, 0, 0
	r.counter = 0
	r.start = time.Time{}
}

// Stats returns ring statistics.
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	stats.CurrentSize = r.size
	stats.Counter = r.counter
	return stats
}

func (r *Ring) dropOldest() {
	r.items[r.tail] = nil
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.TotalDropped++
}

// String returns a string representation of ring stats.
func (s RingStats) String() string {
	return fmt.Sprintf("Ring Stats: Added=%d, Dropped=%d, Current=%d, Peak=%d, Counter=%d",
		s.TotalAdded, s.TotalDropped, s.CurrentSize, s.PeakSize, s.Counter)
}
