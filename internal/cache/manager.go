package cache

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Config sizes the two cache levels. An empty Dir keeps the cache in
// memory only.
type Config struct {
	Dir            string `env:"LIPSYNC_CACHE_DIR"`
	MemoryCapacity int64  `env:"LIPSYNC_CACHE_MEMORY" envDefault:"33554432"`
	DiskCapacity   int64  `env:"LIPSYNC_CACHE_DISK" envDefault:"268435456"`
	Disabled       bool   `env:"LIPSYNC_CACHE_DISABLED"`
}

// Manager looks tracks up in memory, then on disk, promoting disk hits
// into memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache

	mu         sync.Mutex
	promotions int64
}

// ManagerStats aggregates both levels.
type ManagerStats struct {
	Memory     Stats  `json:"memory"`
	Disk       *Stats `json:"disk,omitempty"`
	Promotions int64  `json:"promotions"`
}

// NewManager creates the cache levels described by cfg.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{memory: NewMemoryCache(cfg.MemoryCapacity)}
	if cfg.Dir != "" {
		d, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		m.disk = d
	}
	return m, nil
}

// Get returns the track stored under key and the level it came from.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, LevelMemory, true
	}
	if m.disk == nil {
		return nil, LevelDisk, false
	}
	data, ok := m.disk.Get(key)
	if !ok {
		return nil, LevelDisk, false
	}

	if err := m.memory.Put(key, data); err == nil {
		m.mu.Lock()
		m.promotions++
		m.mu.Unlock()
	}
	return data, LevelDisk, true
}

// Put stores value in every level. Items too large for a level skip it.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.memory.Put(key, value); err != nil && err != ErrItemTooLarge {
		return fmt.Errorf("memory cache: %w", err)
	}
	if m.disk == nil {
		return nil
	}
	if err := m.disk.Put(key, value); err != nil {
		if err == ErrItemTooLarge {
			log.Debug("Track too large for disk cache", "key", key, "size", len(value))
			return nil
		}
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from every level.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	if m.disk != nil {
		m.disk.Delete(key)
	}
}

// Stats returns the counters of both levels.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := ManagerStats{Memory: m.memory.Stats(), Promotions: m.promotions}
	m.mu.Unlock()
	if m.disk != nil {
		ds := m.disk.Stats()
		s.Disk = &ds
	}
	return s
}

// Close persists the disk index.
func (m *Manager) Close() error {
	if m.disk == nil {
		return nil
	}
	if err := m.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}
