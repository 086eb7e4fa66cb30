package dsp_test

import (
	"testing"

	"github.com/dgnsrekt/lipsync/lipsync/dsp"
	"github.com/dgnsrekt/lipsync/lipsync/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freq float64, n int) []float64 {
	return synth.Tones(sampleRate, n, 0, synth.Partial{Freq: freq, Amp: 10000})
}

func TestAnalyzeSize(t *testing.T) {
	tests := []struct {
		n     int
		bins  int
		binHz float64
	}{
		{n: 100, bins: 256, binHz: 46.875},
		{n: 480, bins: 256, binHz: 46.875},
		{n: 512, bins: 256, binHz: 46.875},
		{n: 600, bins: 512, binHz: 23.4375},
		{n: 2048, bins: 1024, binHz: 11.71875},
	}
	for _, tt := range tests {
		s := dsp.Analyze(tone(440, tt.n), sampleRate)
		require.Len(t, s.Magnitude, tt.bins, "n=%d", tt.n)
		require.Len(t, s.Freqs, tt.bins)
		assert.Zero(t, s.Freqs[0])
		assert.InDelta(t, tt.binHz, s.Freqs[1], 1e-9)
	}
}

func TestMelConversion(t *testing.T) {
	assert.InDelta(t, 781.17, dsp.HzToMel(700), 0.01)
	for _, hz := range []float64{80, 440, 1000, 8000} {
		assert.InDelta(t, hz, dsp.MelToHz(dsp.HzToMel(hz)), 1e-6)
	}
}

func TestMelRatios(t *testing.T) {
	tests := []struct {
		name  string
		freq  float64
		check func(t *testing.T, low, mid, high float64)
	}{
		{"low tone", 200, func(t *testing.T, low, _, _ float64) { assert.Greater(t, low, 0.8) }},
		{"mid tone", 1200, func(t *testing.T, _, mid, _ float64) { assert.Greater(t, mid, 0.8) }},
		{"high tone", 4000, func(t *testing.T, _, _, high float64) { assert.Greater(t, high, 0.8) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, mid, high := dsp.Analyze(tone(tt.freq, 1024), sampleRate).MelRatios()
			assert.InDelta(t, 1.0, low+mid+high, 1e-9)
			tt.check(t, low, mid, high)
		})
	}

	low, mid, high := dsp.Analyze(synth.Silence(480), sampleRate).MelRatios()
	assert.Zero(t, low+mid+high)
	assert.Len(t, dsp.Analyze(tone(440, 480), sampleRate).MelBandEnergies(), dsp.MelBands)
}

func TestCentroidAndFlatness(t *testing.T) {
	lowTone := dsp.Analyze(tone(500, 480), sampleRate)
	highTone := dsp.Analyze(tone(3000, 480), sampleRate)
	noise := dsp.Analyze(synth.Noise(480, 8000, 3), sampleRate)
	silent := dsp.Analyze(synth.Silence(480), sampleRate)

	assert.Less(t, lowTone.Centroid(), highTone.Centroid())
	assert.Greater(t, noise.Centroid(), 3000.0)
	assert.Zero(t, silent.Centroid())

	assert.Less(t, lowTone.Flatness(), 0.1)
	assert.Greater(t, noise.Flatness(), 0.5)
	assert.Zero(t, silent.Flatness())
}

func TestPitch(t *testing.T) {
	for _, f := range []float64{120, 150, 200, 300} {
		assert.InDelta(t, f, dsp.Pitch(tone(f, 480), sampleRate), 2, "tone %.0f Hz", f)
	}

	assert.Zero(t, dsp.Pitch(synth.Silence(480), sampleRate))
	assert.Zero(t, dsp.Pitch(synth.Noise(480, 8000, 11), sampleRate))
	assert.Zero(t, dsp.Pitch(tone(200, 50), sampleRate), "frame shorter than the lag range")
	assert.Zero(t, dsp.Pitch(tone(200, 480), 0))
}

func TestFormants(t *testing.T) {
	t.Run("short frame", func(t *testing.T) {
		f1, f2 := dsp.Formants(tone(800, dsp.MinFormantFrame-1), sampleRate)
		assert.Zero(t, f1)
		assert.Zero(t, f2)
	})

	t.Run("single peak", func(t *testing.T) {
		f1, f2 := dsp.Formants(tone(1000, 480), sampleRate)
		assert.Zero(t, f1)
		assert.Zero(t, f2)
	})

	t.Run("two peaks sorted and clamped", func(t *testing.T) {
		x := synth.Tones(sampleRate, 480, 0,
			synth.Partial{Freq: 1500, Amp: 6000},
			synth.Partial{Freq: 700, Amp: 9000},
		)
		f1, f2 := dsp.Formants(x, sampleRate)
		assert.InDelta(t, 700, f1, 50)
		assert.InDelta(t, 1500, f2, 50)
		assert.GreaterOrEqual(t, f1, dsp.F1Min)
		assert.LessOrEqual(t, f1, dsp.F1Max)
		assert.GreaterOrEqual(t, f2, dsp.F2Min)
		assert.LessOrEqual(t, f2, dsp.F2Max)
	})

	t.Run("silence", func(t *testing.T) {
		f1, f2 := dsp.Formants(synth.Silence(480), sampleRate)
		assert.Zero(t, f1)
		assert.Zero(t, f2)
	})
}
