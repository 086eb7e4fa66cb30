package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func track(n int) []byte {
	return bytes.Repeat([]byte(`{"t":0.02,"viseme":"a","mouth_open":0.7}`+"\n"), n)
}

func TestKey(t *testing.T) {
	type settings struct {
		Rate int
		FPS  float64
	}
	k1, err := Key([]byte("audio"), settings{24000, 60})
	require.NoError(t, err)
	k2, err := Key([]byte("audio"), settings{24000, 60})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	k3, err := Key([]byte("audio"), settings{16000, 60})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := Key([]byte("other"), settings{24000, 60})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)

	_, err = Key(nil, func() {})
	require.Error(t, err)
}

func TestMemoryCacheLRU(t *testing.T) {
	c := NewMemoryCache(100)

	require.NoError(t, c.Put("a", make([]byte, 40)))
	require.NoError(t, c.Put("b", make([]byte, 40)))
	_, ok := c.Get("a") // a is now most recent
	require.True(t, ok)

	require.NoError(t, c.Put("c", make([]byte, 40)))
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)

	assert.ErrorIs(t, c.Put("huge", make([]byte, 101)), ErrItemTooLarge)

	s := c.Stats()
	assert.Equal(t, int64(80), s.Size)
	assert.Equal(t, int64(2), s.ItemCount)
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 2.0/3, s.HitRate, 1e-9)
}

func TestMemoryCacheReplace(t *testing.T) {
	c := NewMemoryCache(100)
	require.NoError(t, c.Put("a", make([]byte, 60)))
	require.NoError(t, c.Put("a", make([]byte, 70)))

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Len(t, v, 70)
	assert.Equal(t, int64(70), c.Stats().Size)

	c.Delete("a")
	assert.Zero(t, c.Stats().Size)
}

func TestDiskCachePersists(t *testing.T) {
	dir := t.TempDir()
	value := track(200)

	dc, err := NewDiskCache(dir, 1<<20)
	require.NoError(t, err)
	require.NoError(t, dc.Put("k", value))
	assert.Less(t, dc.Stats().Size, int64(len(value)), "stored compressed")
	require.NoError(t, dc.Close())

	dc, err = NewDiskCache(dir, 1<<20)
	require.NoError(t, err)
	defer dc.Close() //nolint:errcheck

	got, ok := dc.Get("k")
	require.True(t, ok)
	assert.Equal(t, value, got)
	assert.Equal(t, int64(1), dc.Stats().ItemCount)
}

func TestDiskCacheCorruptFile(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20)
	require.NoError(t, err)
	defer dc.Close() //nolint:errcheck

	require.NoError(t, dc.Put("k", track(10)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.jsonl.zst"), []byte("garbage"), 0o644))

	_, ok := dc.Get("k")
	assert.False(t, ok)
	assert.Zero(t, dc.Stats().ItemCount, "corrupt entry dropped")
}

func TestDiskCacheEvicts(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer dc.Close() //nolint:errcheck

	require.NoError(t, dc.Put("first", track(50)))
	one := dc.Stats().Size
	dc.capacity = one * 2

	require.NoError(t, dc.Put("second", track(50)))
	require.NoError(t, dc.Put("third", track(50)))

	_, ok := dc.Get("first")
	assert.False(t, ok)
	_, ok = dc.Get("third")
	assert.True(t, ok)
	assert.Equal(t, int64(1), dc.Stats().Evictions)
}

func TestManagerPromotes(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Dir: dir, MemoryCapacity: 1 << 16, DiskCapacity: 1 << 20})
	require.NoError(t, err)

	value := track(20)
	require.NoError(t, m.Put("k", value))
	require.NoError(t, m.Close())

	// a fresh manager only has the disk copy
	m, err = NewManager(Config{Dir: dir, MemoryCapacity: 1 << 16, DiskCapacity: 1 << 20})
	require.NoError(t, err)
	defer m.Close() //nolint:errcheck

	got, lvl, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, LevelDisk, lvl)
	assert.Equal(t, value, got)

	_, lvl, ok = m.Get("k")
	require.True(t, ok)
	assert.Equal(t, LevelMemory, lvl)
	assert.Equal(t, int64(1), m.Stats().Promotions)

	m.Delete("k")
	_, _, ok = m.Get("k")
	assert.False(t, ok)
}

func TestManagerMemoryOnly(t *testing.T) {
	m, err := NewManager(Config{MemoryCapacity: 64})
	require.NoError(t, err)

	require.NoError(t, m.Put("small", []byte("x")))
	require.NoError(t, m.Put("big", make([]byte, 65)), "too large is skipped")

	_, _, ok := m.Get("big")
	assert.False(t, ok)
	_, lvl, ok := m.Get("small")
	assert.True(t, ok)
	assert.Equal(t, LevelMemory, lvl)
	assert.Nil(t, m.Stats().Disk)
	assert.NoError(t, m.Close())
}
