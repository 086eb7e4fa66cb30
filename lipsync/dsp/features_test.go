package dsp_test

import (
	"testing"

	"github.com/dgnsrekt/lipsync/lipsync/dsp"
	"github.com/dgnsrekt/lipsync/lipsync/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 24000

func negate(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}

func TestSignSymmetry(t *testing.T) {
	frames := map[string][]float64{
		"tone":  synth.Tones(sampleRate, 480, 0, synth.Partial{Freq: 440, Amp: 9000}),
		"noise": synth.Noise(480, 8000, 7),
		"mixed": synth.Tones(sampleRate, 333, 17, synth.Partial{Freq: 180, Amp: 3000}, synth.Partial{Freq: 2900, Amp: 1200}),
	}
	for name, x := range frames {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, dsp.RMS(x), dsp.RMS(negate(x)))
			assert.Equal(t, dsp.ZCR(x), dsp.ZCR(negate(x)))
		})
	}
}

func TestZCR(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 0},
		{"constant", []float64{3, 3, 3, 3}, 0},
		{"alternating", []float64{1, -1, 1, -1, 1, -1, 1, -1}, 7.0 / 8.0},
		{"touching zero", []float64{1, 0, 1, 0}, 3.0 / 8.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, dsp.ZCR(tt.samples), 1e-12)
		})
	}
}

func TestRMS(t *testing.T) {
	assert.Zero(t, dsp.RMS(nil))
	assert.InDelta(t, 5.0, dsp.RMS([]float64{5, -5, 5, -5}), 1e-12)

	sine := synth.Tones(sampleRate, 2400, 0, synth.Partial{Freq: 100, Amp: 10000})
	assert.InDelta(t, 10000/1.41421356, dsp.RMS(sine), 5)
}

func TestExtractZeroFrame(t *testing.T) {
	for _, n := range []int{0, 1, 100, 480, 2048} {
		f := dsp.Extract(synth.Silence(n), sampleRate)
		assert.True(t, f.IsZero(), "n=%d: %+v", n, f)
	}
}

func TestExtractNoise(t *testing.T) {
	f := dsp.Extract(synth.Noise(480, 8000, 42), sampleRate)
	require.True(t, f.Valid())

	assert.Greater(t, f.ZCR, 0.3)
	assert.Greater(t, f.SpectralFlatness, 0.5)
	assert.Greater(t, f.SpectralCentroid, 3000.0)
	assert.InDelta(t, 8000/1.732, f.RMS, 600)
}

func TestExtractVowels(t *testing.T) {
	tests := []struct {
		vowel          string
		f1, f2         float64
		maxMid, maxZCR float64
	}{
		{vowel: "a", f1: 800, f2: 1500, maxMid: 0.6, maxZCR: 0.15},
		{vowel: "i", f1: 300, f2: 2400, maxMid: 0.6, maxZCR: 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.vowel, func(t *testing.T) {
			partials, err := synth.Vowel(tt.vowel)
			require.NoError(t, err)

			for _, offset := range []int{0, 480, 4800} {
				f := dsp.Extract(synth.Tones(sampleRate, 480, offset, partials...), sampleRate)
				require.True(t, f.Valid())

				assert.InDelta(t, tt.f1, f.F1, 50, "offset %d", offset)
				assert.InDelta(t, tt.f2, f.F2, 50, "offset %d", offset)
				assert.Less(t, f.MelMid, tt.maxMid)
				assert.Less(t, f.MelHigh, 0.4)
				assert.Less(t, f.ZCR, tt.maxZCR)
				assert.Less(t, f.SpectralFlatness, 0.5)
				assert.InDelta(t, 1.0, f.MelLow+f.MelMid+f.MelHigh, 1e-9)
			}
		})
	}
}

func TestSamplesFromPCM16(t *testing.T) {
	in := []float64{0, 1, -1, 32767, -32768, 1234}
	got := dsp.SamplesFromPCM16(synth.PCM16(in))
	assert.Equal(t, in, got)

	// trailing odd byte is ignored
	odd := append(synth.PCM16([]float64{7}), 0xff)
	assert.Equal(t, []float64{7}, dsp.SamplesFromPCM16(odd))

	assert.Equal(t, []float64{-2, 3}, dsp.SamplesFromInt16([]int16{-2, 3}))
}

func TestFeaturesValid(t *testing.T) {
	assert.True(t, dsp.Features{}.Valid())
	assert.True(t, dsp.Features{}.IsZero())
	assert.False(t, dsp.Features{RMS: 1}.IsZero())
}
