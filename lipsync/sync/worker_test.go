package sync_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/lipsync/lipsync"
	"github.com/dgnsrekt/lipsync/lipsync/audio"
	lsync "github.com/dgnsrekt/lipsync/lipsync/sync"
)

func startedTimeline(t *testing.T, pcm []byte) *lsync.SegmentTimeline {
	t.Helper()
	tl := lsync.NewSegmentTimeline(audio.BytesToInt16(pcm), rate, 60)
	tl.MarkStart(time.Now())
	return tl
}

func TestWorkerClosesMouthOnStop(t *testing.T) {
	rec, sink := newRecorder()
	w := lsync.NewWorker(newEngine(), sink, time.Second/60, 0, nil)

	require.NoError(t, w.Start(startedTimeline(t, vowelPCM(t, "a", 2*time.Second))))
	assert.True(t, w.Running())
	time.Sleep(300 * time.Millisecond)
	w.Stop()
	assert.False(t, w.Running())

	assert.Greater(t, rec.MaxOpen(), 0.0, "vowel should open the mouth")
	last, _ := rec.Last()
	assert.Equal(t, lipsync.FaceParams{}, last)
	for _, f := range rec.Frames() {
		assert.True(t, f.Valid(), "out of range: %+v", f)
	}

	// stopping twice is harmless
	w.Stop()
}

func TestWorkerRate(t *testing.T) {
	_, sink := newRecorder()
	w := lsync.NewWorker(newEngine(), sink, time.Second/60, 0, nil)

	require.NoError(t, w.Start(startedTimeline(t, vowelPCM(t, "i", 2*time.Second))))
	time.Sleep(500 * time.Millisecond)
	w.Stop()

	// 60 Hz over half a second, with room for a loaded machine
	assert.GreaterOrEqual(t, w.Updates(), int64(20))
}

func TestWorkerAlreadyStarted(t *testing.T) {
	w := lsync.NewWorker(newEngine(), nil, 0, 0, nil)
	tl := startedTimeline(t, silencePCM(time.Second))

	require.NoError(t, w.Start(tl))
	defer w.Stop()
	assert.ErrorIs(t, w.Start(tl), lipsync.ErrAlreadyStarted)
}

func TestWorkerWaitsForPlaybackStart(t *testing.T) {
	rec, sink := newRecorder()
	w := lsync.NewWorker(newEngine(), sink, 10*time.Millisecond, 0, nil)
	tl := lsync.NewSegmentTimeline(audio.BytesToInt16(vowelPCM(t, "a", time.Second)), rate, 60)

	require.NoError(t, w.Start(tl))
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	// only the closing frame
	assert.Equal(t, 1, rec.Len())
}

func TestWorkerDelayHoldsCursor(t *testing.T) {
	rec, sink := newRecorder()
	w := lsync.NewWorker(newEngine(), sink, 10*time.Millisecond, time.Hour, nil)
	tl := startedTimeline(t, silencePCM(time.Second))

	require.NoError(t, w.Start(tl))
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	// a huge delay keeps the cursor at the first sample, which is silent
	for _, f := range rec.Frames() {
		assert.Equal(t, lipsync.FaceParams{}, f)
	}

	w.SetDelay(-time.Second)
	assert.Equal(t, time.Duration(0), w.Delay())
	w.SetDelay(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, w.Delay())
}

type failingSink struct {
	panics bool
}

func (s failingSink) SetAudioVolume(float64) error {
	if s.panics {
		panic("sink exploded")
	}
	return errors.New("sink offline")
}
func (failingSink) SetMouthForm(float64) error  { return nil }
func (failingSink) SetMouthSmile(float64) error { return nil }
func (failingSink) SetEyeBrow(float64) error    { return nil }
func (failingSink) SetEyeWide(float64) error    { return nil }

func TestWorkerSurvivesSinkFailures(t *testing.T) {
	for name, sink := range map[string]lipsync.FaceSink{
		"error": failingSink{},
		"panic": failingSink{panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			w := lsync.NewWorker(newEngine(), sink, 10*time.Millisecond, 0, nil)
			require.NoError(t, w.Start(startedTimeline(t, vowelPCM(t, "a", time.Second))))
			time.Sleep(100 * time.Millisecond)
			assert.True(t, w.Running())
			w.Stop()

			assert.Greater(t, w.SinkErrors(), int64(3))
			assert.Equal(t, int64(0), w.Updates())
		})
	}
}
