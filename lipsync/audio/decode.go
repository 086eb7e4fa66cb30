package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/lipsync/lipsync"
)

// Container identifies an encoded audio format.
type Container string

const (
	ContainerPCM Container = "pcm"
	ContainerWAV Container = "wav"
	ContainerMP3 Container = "mp3"
)

// Segment is decoded audio.
type Segment struct {
	Samples    []int16 // interleaved when Channels > 1
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the segment.
func (s Segment) Duration() float64 {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return 0
	}
	return float64(len(s.Samples)/s.Channels) / float64(s.SampleRate)
}

// Mono downmixes the segment to one channel.
func (s Segment) Mono() Segment {
	return Segment{
		Samples:    Downmix(s.Samples, s.Channels),
		SampleRate: s.SampleRate,
		Channels:   1,
	}
}

// For returns the segment as mono at rate sr, resampling when needed.
func (s Segment) For(sr int) Segment {
	m := s.Mono()
	if sr <= 0 || m.SampleRate == sr {
		return m
	}
	m.Samples = Resample(m.Samples, m.SampleRate, sr)
	m.SampleRate = sr
	return m
}

// Sniff guesses the container of data from its first bytes.
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return ContainerMP3
	case isMP3Frame(data):
		return ContainerMP3
	default:
		return ContainerPCM
	}
}

// isMP3Frame reports whether data starts with an MPEG audio frame header
// with a valid layer, bitrate and sample rate.
func isMP3Frame(data []byte) bool {
	if len(data) < 4 || data[0] != 0xFF || data[1]&0xE0 != 0xE0 {
		return false
	}
	layer := (data[1] >> 1) & 0x03
	bitrate := data[2] >> 4
	rate := (data[2] >> 2) & 0x03
	return layer != 0 && bitrate != 0 && bitrate != 0x0F && rate != 0x03
}

// Decode decodes a WAV or MP3 container, or treats data as raw mono
// 16-bit PCM at rate sr. Raw PCM that happens to start like a container
// header should go through DecodeAs.
func Decode(data []byte, sr int) (Segment, error) {
	return DecodeAs(data, Sniff(data), sr)
}

// DecodeAs decodes data as container c. sr is used for raw PCM only.
func DecodeAs(data []byte, c Container, sr int) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, lipsync.ErrEmptyAudio
	}
	switch c {
	case ContainerWAV:
		return DecodeWAV(data)
	case ContainerMP3:
		return DecodeMP3(data)
	default:
		if sr <= 0 {
			return Segment{}, fmt.Errorf("%w: raw PCM needs a sample rate", lipsync.ErrInvalidSampleRate)
		}
		if err := ValidatePCM(data, Mono(sr)); err != nil {
			return Segment{}, err
		}
		return Segment{Samples: BytesToInt16(data), SampleRate: sr, Channels: 1}, nil
	}
}

// DecodeBase64 decodes one base64 encoded PCM chunk.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", lipsync.ErrDecodeFailed, err)
	}
	if len(b)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd PCM length %d", lipsync.ErrDecodeFailed, len(b))
	}
	return b, nil
}

// DecodeWAV decodes a 16-bit PCM WAV file.
func DecodeWAV(data []byte) (Segment, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Segment{}, fmt.Errorf("%w: invalid WAV file", lipsync.ErrDecodeFailed)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("%w: reading WAV data: %w", lipsync.ErrDecodeFailed, err)
	}
	if len(buf.Data) == 0 {
		return Segment{}, lipsync.ErrEmptyAudio
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = floatToInt16(float64(v))
	}
	return Segment{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// DecodeMP3 decodes an MP3 stream. The decoder always yields stereo.
func DecodeMP3(data []byte) (Segment, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Segment{}, fmt.Errorf("%w: mp3: %w", lipsync.ErrDecodeFailed, err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Segment{}, fmt.Errorf("%w: mp3: %w", lipsync.ErrDecodeFailed, err)
	}
	if len(pcm) == 0 {
		return Segment{}, lipsync.ErrEmptyAudio
	}
	return Segment{
		Samples:    BytesToInt16(pcm),
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}

// EncodeWAV writes mono samples as a 16-bit PCM WAV file.
func EncodeWAV(w io.WriteSeeker, samples []int16, sr int) error {
	enc := wav.NewEncoder(w, sr, 16, 1, 1) // 1 = PCM

	data := make([]float32, len(samples))
	for i, s := range samples {
		data[i] = float32(s) / 32768
	}
	buf := &goaudio.Float32Buffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sr, NumChannels: 1},
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}
	return nil
}

// WAVBytes encodes mono samples as an in-memory WAV file.
func WAVBytes(samples []int16, sr int) ([]byte, error) {
	var sb seekBuffer
	if err := EncodeWAV(&sb, samples, sr); err != nil {
		return nil, err
	}
	return sb.data, nil
}

func floatToInt16(v float64) int16 {
	return int16(math.Round(math.Max(-1, math.Min(1, v)) * 32767))
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}
	n := copy(s.data[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(len(s.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("seek before start")
	}
	s.pos = int(pos)
	return pos, nil
}
