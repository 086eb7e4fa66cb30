// Package dsp extracts per-frame acoustic features from mono PCM audio.
// It computes energy, zero-crossing rate, MEL band ratios, spectral shape,
// formant estimates and pitch. Every function is stateless and safe to call
// from any goroutine.
package dsp
