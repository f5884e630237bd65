package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/faiface/beep"
)

// Generated speech and ambience arrive as 16-bit signed little-endian mono PCM.
const (
	// SampleRate is the rate every payload is encoded at.
	SampleRate beep.SampleRate = 24000
	// Channels is the number of channels in a payload (mono).
	Channels = 1
	// BitDepth is the bits per sample.
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample.
	BytesPerSample = BitDepth / 8
)

var ErrOddPayload = errors.New("pcm payload is not a whole number of samples")

// Buffer is decoded mono audio with samples normalized to [-1, 1].
type Buffer struct {
	SampleRate beep.SampleRate
	Samples    []float64
}

// Len returns the number of frames.
func (b *Buffer) Len() int { return len(b.Samples) }

func (b *Buffer) Duration() time.Duration {
	return b.SampleRate.D(len(b.Samples))
}

// Streamer returns a fresh seekable reader over the buffer.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &bufferStreamer{buf: b}
}

// Decode turns a base64 PCM payload into a buffer. Each signed sample is
// divided by 32768.
func Decode(payload string) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	if len(raw)%BytesPerSample != 0 {
		return nil, ErrOddPayload
	}

	frames := len(raw) / (BytesPerSample * Channels)
	samples := make([]float64, frames)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
		samples[i] = float64(v) / 32768.0
	}
	return &Buffer{SampleRate: SampleRate, Samples: samples}, nil
}

// Encode is the inverse of Decode; samples are clipped to [-1, 1].
func Encode(samples []float64) string {
	raw := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*BytesPerSample:], uint16(toInt16(s)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// EncodePCM base64-encodes raw little-endian PCM bytes.
func EncodePCM(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func toInt16(s float64) int16 {
	s = math.Max(-1, math.Min(1, s))
	v := math.Round(s * 32768)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	return int16(v)
}

// Collect drains a stereo streamer into a mono buffer by averaging channels.
func Collect(s beep.Streamer, rate beep.SampleRate) *Buffer {
	out := &Buffer{SampleRate: rate}
	chunk := make([][2]float64, 512)
	for {
		n, ok := s.Stream(chunk)
		for _, frame := range chunk[:n] {
			out.Samples = append(out.Samples, (frame[0]+frame[1])/2)
		}
		if !ok {
			return out
		}
	}
}

type bufferStreamer struct {
	buf *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.buf.Samples) {
		return 0, false
	}
	n := copy2(samples, s.buf.Samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *bufferStreamer) Err() error    { return nil }
func (s *bufferStreamer) Len() int      { return len(s.buf.Samples) }
func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > len(s.buf.Samples) {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, len(s.buf.Samples))
	}
	s.pos = p
	return nil
}

func copy2(dst [][2]float64, src []float64) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i][0] = src[i]
		dst[i][1] = src[i]
	}
	return n
}
