package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultSampleRate is the rate synthesized speech is delivered at.
	DefaultSampleRate = 24000
	// DefaultChannels is mono.
	DefaultChannels = 1
)

var (
	ErrEmptyPCM       = errors.New("pcm data is empty")
	ErrOddPCMLength   = errors.New("pcm data must have even length (16-bit samples)")
	ErrInvalidFormat  = errors.New("invalid sample rate or channel count")
	errUnsupportedWAV = errors.New("only mono (1) or stereo (2) channels supported")
)

// Buffer holds decoded audio as normalized float samples, one slice per channel.
type Buffer struct {
	SampleRate int
	Channels   int
	Data       [][]float32
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Head returns a buffer sharing the first n frames of b.
func (b *Buffer) Head(n int) *Buffer {
	if b == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	if n > b.Frames() {
		n = b.Frames()
	}
	head := &Buffer{SampleRate: b.SampleRate, Channels: b.Channels, Data: make([][]float32, len(b.Data))}
	for ch := range b.Data {
		head.Data[ch] = b.Data[ch][:n]
	}
	return head
}

// DecodeBase64PCM decodes a base64 payload of 16-bit little-endian PCM.
func DecodeBase64PCM(payload string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return DecodePCM16(raw, sampleRate, channels)
}

// DecodePCM16 converts interleaved 16-bit little-endian PCM into a Buffer.
// Trailing samples that do not fill a whole frame are dropped.
func DecodePCM16(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrInvalidFormat
	}
	if len(data) == 0 {
		return nil, ErrEmptyPCM
	}
	if len(data)%2 != 0 {
		return nil, ErrOddPCMLength
	}

	samples := len(data) / 2
	frames := samples / channels

	buf := &Buffer{SampleRate: sampleRate, Channels: channels, Data: make([][]float32, channels)}
	for ch := 0; ch < channels; ch++ {
		out := make([]float32, frames)
		for i := 0; i < frames; i++ {
			offset := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(data[offset:]))
			out[i] = float32(sample) / 32768.0
		}
		buf.Data[ch] = out
	}
	return buf, nil
}

// PCM16 re-encodes the buffer as interleaved 16-bit little-endian PCM.
func (b *Buffer) PCM16() []byte {
	frames := b.Frames()
	out := make([]byte, frames*b.Channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < b.Channels; ch++ {
			v := float64(b.Data[ch][i]) * 32768.0
			v = math.Max(math.Min(v, math.MaxInt16), math.MinInt16)
			binary.LittleEndian.PutUint16(out[(i*b.Channels+ch)*2:], uint16(int16(v)))
		}
	}
	return out
}
