// Package cache stores computed face parameter tracks in memory and on disk,
// keyed by the audio and the engine settings that produced them.
package cache
