package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDecodePCM16Mono(t *testing.T) {
	buf, err := DecodePCM16(pcmOf(0, 16384, -32768), DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("DecodePCM16 err: %v", err)
	}
	if buf.Frames() != 3 {
		t.Fatalf("expected 3 frames, got %d", buf.Frames())
	}
	want := []float32{0, 0.5, -1}
	for i, v := range want {
		if buf.Data[0][i] != v {
			t.Fatalf("sample %d = %f, want %f", i, buf.Data[0][i], v)
		}
	}
}

func TestDecodePCM16Stereo(t *testing.T) {
	buf, err := DecodePCM16(pcmOf(100, -100, 200, -200, 300), 8000, 2)
	if err != nil {
		t.Fatalf("DecodePCM16 err: %v", err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("expected trailing half frame to be dropped, got %d frames", buf.Frames())
	}
	if buf.Data[1][1] != float32(-200)/32768.0 {
		t.Fatalf("unexpected right channel sample %f", buf.Data[1][1])
	}
}

func TestDecodePCM16Errors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		rate int
		want error
	}{
		{name: "empty", data: nil, rate: DefaultSampleRate, want: ErrEmptyPCM},
		{name: "odd length", data: []byte{1, 2, 3}, rate: DefaultSampleRate, want: ErrOddPCMLength},
		{name: "bad rate", data: pcmOf(1), rate: 0, want: ErrInvalidFormat},
	}

	for _, tc := range cases {
		if _, err := DecodePCM16(tc.data, tc.rate, 1); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestDecodeBase64PCMRejectsGarbage(t *testing.T) {
	if _, err := DecodeBase64PCM("not base64!!", DefaultSampleRate, DefaultChannels); err == nil {
		t.Fatal("expected error for invalid base64 payload")
	}

	payload := base64.StdEncoding.EncodeToString(pcmOf(1, 2, 3, 4))
	buf, err := DecodeBase64PCM(payload, DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("DecodeBase64PCM err: %v", err)
	}
	if buf.Frames() != 4 {
		t.Fatalf("expected 4 frames, got %d", buf.Frames())
	}
}

func TestBufferDurationAndHead(t *testing.T) {
	buf, err := DecodePCM16(make([]byte, DefaultSampleRate*2), DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("DecodePCM16 err: %v", err)
	}
	if buf.Duration() != time.Second {
		t.Fatalf("expected 1s, got %v", buf.Duration())
	}

	head := buf.Head(DefaultSampleRate / 4)
	if head.Duration() != 250*time.Millisecond {
		t.Fatalf("expected 250ms head, got %v", head.Duration())
	}
	if buf.Head(-1).Frames() != 0 || buf.Head(1<<30).Frames() != buf.Frames() {
		t.Fatal("Head should clamp to buffer bounds")
	}

	var empty *Buffer
	if h := empty.Head(10); h.Frames() != 0 || h.Duration() != 0 {
		t.Fatal("Head of a nil buffer should be empty")
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := pcmOf(0, 1234, -1234, 32767, -32768)
	buf, err := DecodePCM16(in, DefaultSampleRate, DefaultChannels)
	if err != nil {
		t.Fatalf("DecodePCM16 err: %v", err)
	}
	out := buf.PCM16()
	if string(out) != string(in) {
		t.Fatalf("round trip mismatch: %v vs %v", out, in)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	wav, err := EncodeWAV(pcmOf(1, 2), 1, DefaultSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV err: %v", err)
	}
	if len(wav) != wavHeaderSize+4 {
		t.Fatalf("unexpected wav size %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("malformed header %q", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != DefaultSampleRate {
		t.Fatalf("expected sample rate %d, got %d", DefaultSampleRate, rate)
	}

	if _, err := EncodeWAV(pcmOf(1), 3, DefaultSampleRate); err == nil {
		t.Fatal("expected error for 3 channels")
	}
}
