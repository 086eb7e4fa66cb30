package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cached data cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level is the tier a track was found in.
type Level int

const (
	// LevelMemory is the in-process LRU.
	LevelMemory Level = iota

	// LevelDisk is the persistent zstd store.
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Capacity  int64 `json:"capacity"`
	Size      int64 `json:"size"`
	ItemCount int64 `json:"item_count"`

	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`

	LastAccess time.Time `json:"last_access"`
	LastEvict  time.Time `json:"last_evict"`
}

func (s *Stats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Key derives a cache key from the audio bytes and the settings that
// shape the track. settings must be JSON encodable; two runs with equal
// audio and settings share a key.
func Key(audio []byte, settings any) (string, error) {
	s, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(audio)
	h.Write([]byte{0})
	h.Write(s)
	return hex.EncodeToString(h.Sum(nil)), nil
}
