package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/lipsync/lipsync/audio"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

func TestCursorPosition(t *testing.T) {
	t0 := time.Now()
	c := lsync.Cursor{Start: t0, SampleRate: rate, Delay: 25 * time.Millisecond}

	tests := []struct {
		at   time.Duration
		want int64
	}{
		{-time.Second, 0},
		{0, 0},
		{25 * time.Millisecond, 0},
		{35 * time.Millisecond, 240},
		{125 * time.Millisecond, 2400},
		{time.Second + 25*time.Millisecond, rate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Position(t0.Add(tt.at)), "at %v", tt.at)
	}
}

func TestSegmentTimelineWindow(t *testing.T) {
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i)
	}
	// 1000 Hz analysed 10 times a second: windows reach 50 samples each way.
	tl := lsync.NewSegmentTimeline(samples, 1000, 10)

	_, started := tl.Start()
	assert.False(t, started)
	assert.Equal(t, 1000, tl.Len())
	assert.Equal(t, time.Second, tl.Duration())
	assert.Equal(t, 1000, tl.SampleRate())

	tests := []struct {
		pos    int64
		ok     bool
		lo, hi int16
	}{
		{-1, false, 0, 0},
		{0, true, 0, 49},
		{500, true, 450, 549},
		{999, true, 949, 999},
		{1000, false, 0, 0},
	}
	for _, tt := range tests {
		w, ok := tl.Window(tt.pos)
		require.Equal(t, tt.ok, ok, "pos %d", tt.pos)
		if !ok {
			continue
		}
		assert.Equal(t, tt.lo, w[0], "pos %d", tt.pos)
		assert.Equal(t, tt.hi, w[len(w)-1], "pos %d", tt.pos)
	}

	now := time.Now()
	tl.MarkStart(now)
	start, started := tl.Start()
	assert.True(t, started)
	assert.Equal(t, now, start)
}

func TestSegmentTimelineWindowIsNotWritable(t *testing.T) {
	samples := make([]int16, 100)
	tl := lsync.NewSegmentTimeline(samples, 1000, 100)
	w, ok := tl.Window(10)
	require.True(t, ok)
	require.Len(t, w, 10)
	_ = append(w, 42)
	assert.Equal(t, int16(0), samples[15], "append must not write through")
}

func TestRingTimeline(t *testing.T) {
	ring := audio.NewRing(5, 10)
	tl := lsync.NewRingTimeline(ring, 1000)

	_, ok := tl.Start()
	assert.False(t, ok)
	_, ok = tl.Window(0)
	assert.False(t, ok)

	now := time.Now()
	for i := range 3 {
		c := make([]int16, 10)
		for j := range c {
			c[j] = int16(i)
		}
		ring.Append(c, now)
	}

	start, ok := tl.Start()
	require.True(t, ok)
	assert.Equal(t, now, start)
	assert.Equal(t, 1000, tl.SampleRate())

	w, ok := tl.Window(15)
	require.True(t, ok)
	assert.Len(t, w, 10)
	assert.Equal(t, int16(1), w[0])
}
