// Package synth generates deterministic test signals: sums of sinusoids,
// vowel-shaped partial sets and white noise, as float samples on the int16
// amplitude scale or as 16-bit little-endian PCM.
package synth

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// Partial is one sinusoid of a synthetic signal.
type Partial struct {
	Freq float64
	Amp  float64
}

// vowels holds partial sets with a low fundamental and formant-weighted
// harmonics, so the spectrum has the low-band energy of voiced speech.
var vowels = map[string][]Partial{
	"a": {{150, 12000}, {800, 8000}, {1500, 6000}},
	"i": {{300, 10000}, {2400, 3000}},
}

// Vowel returns the partials of a named synthetic vowel.
func Vowel(name string) ([]Partial, error) {
	p, ok := vowels[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown vowel %q (available: %s)", name, strings.Join(VowelNames(), ", "))
	}
	return slices.Clone(p), nil
}

// VowelNames lists the available vowels.
func VowelNames() []string {
	names := make([]string, 0, len(vowels))
	for k := range vowels {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Tones renders n samples of the partials starting at sample offset.
func Tones(sampleRate, n, offset int, partials ...Partial) []float64 {
	out := make([]float64, n)
	for _, p := range partials {
		w := 2 * math.Pi * p.Freq / float64(sampleRate)
		for i := range out {
			out[i] += p.Amp * math.Sin(w*float64(i+offset))
		}
	}
	return out
}

// Noise renders n samples of uniform white noise in [-amp, amp]. The same
// seed always yields the same signal.
func Noise(n int, amp float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*r.Float64() - 1) * amp
	}
	return out
}

// Silence renders n zero samples.
func Silence(n int) []float64 {
	return make([]float64, n)
}

// PCM16 converts float samples to 16-bit little-endian PCM, clipping to the
// int16 range.
func PCM16(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(math.Max(math.MinInt16, math.Min(math.MaxInt16, s)))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// Chunks splits pcm into pieces of at most size bytes.
func Chunks(pcm []byte, size int) [][]byte {
	if size <= 0 {
		return [][]byte{pcm}
	}
	var out [][]byte
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		out = append(out, pcm[:n])
		pcm = pcm[n:]
	}
	return out
}
