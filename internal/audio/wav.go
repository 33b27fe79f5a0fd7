package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPCM
	}
	if channels <= 0 || channels > 2 {
		return nil, errUnsupportedWAV
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidFormat
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, errors.New("pcm data length doesn't match channel count")
	}

	const (
		bitsPerSample = 16
		formatPCM     = 1
		fmtChunkSize  = 16
	)

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// WAV encodes the buffer as a WAV file.
func (b *Buffer) WAV() ([]byte, error) {
	return EncodeWAV(b.PCM16(), b.Channels, b.SampleRate)
}
