// Package audio handles PCM data and audio devices for lip-sync playback:
// sample conversion and resampling, container decoding, the sliding chunk
// ring sampled by the lip-sync worker, and output and input devices backed
// by oto, portaudio or a paced in-memory mock.
package audio
