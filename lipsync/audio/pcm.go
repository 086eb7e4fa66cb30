package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// BytesPerSample is the size of one mono 16-bit sample.
const BytesPerSample = 2

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono returns a single-channel format at rate sr.
func Mono(sr int) Format {
	return Format{SampleRate: sr, Channels: 1}
}

// FrameSize returns the number of bytes per sample frame.
func (f Format) FrameSize() int {
	return BytesPerSample * max(f.Channels, 1)
}

// ValidatePCM checks that data holds whole sample frames.
func ValidatePCM(data []byte, f Format) error {
	if len(data) == 0 {
		return lipsync.ErrEmptyAudio
	}
	if len(data)%f.FrameSize() != 0 {
		return fmt.Errorf("%w: PCM data length %d is not aligned to %d-byte frames",
			lipsync.ErrInvalidAudioFormat, len(data), f.FrameSize())
	}
	return nil
}

// Duration returns the playing time of n mono samples at rate sr.
func Duration(n, sr int) time.Duration {
	if sr <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sr))
}

// SamplesFor returns the number of samples that play for d at rate sr.
func SamplesFor(d time.Duration, sr int) int {
	return int(int64(d) * int64(sr) / int64(time.Second))
}

// BytesToInt16 decodes little-endian PCM. A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian PCM.
func Int16ToBytes(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(to) / float64(from)
	n := int(float64(len(samples)) * ratio)
	out := make([]int16, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		v := float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac
		out[i] = int16(math.Round(v))
	}
	return out
}

// Split cuts samples into chunks of size. The final chunk holds the
// remainder and may be shorter.
func Split(samples []int16, size int) [][]int16 {
	if size <= 0 || len(samples) == 0 {
		return nil
	}
	chunks := make([][]int16, 0, (len(samples)+size-1)/size)
	for len(samples) > 0 {
		n := min(size, len(samples))
		chunks = append(chunks, samples[:n:n])
		samples = samples[n:]
	}
	return chunks
}

// Level returns the RMS of samples normalised to full scale, in [0, 1].
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768
}

// Silence returns d of zero samples at rate sr.
func Silence(d time.Duration, sr int) []int16 {
	return make([]int16, SamplesFor(d, sr))
}
