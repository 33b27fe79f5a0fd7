package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/codementor/backend/internal/model/speech"
)

type fakeGenerator struct {
	result *speechmodel.Synthesis
	err    error

	mu     sync.Mutex
	texts  []string
	voices []string
}

func (f *fakeGenerator) Generate(ctx context.Context, text string) (*speechmodel.Synthesis, error) {
	return f.GenerateVoice(ctx, text, "")
}

func (f *fakeGenerator) GenerateVoice(ctx context.Context, text, voice string) (*speechmodel.Synthesis, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	return f.result, f.err
}

func pcmPayload(frames int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, frames*2))
}

func synthesize(t *testing.T, gen Generator, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(gen, "gemini").RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSynthesizeReturnsWAV(t *testing.T) {
	gen := &fakeGenerator{result: &speechmodel.Synthesis{Audio: pcmPayload(2400)}}

	resp := synthesize(t, gen, `{"text":"Hello there"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("unexpected content type %q", got)
	}

	wav := resp.Body.Bytes()
	if len(wav) != 44+2400*2 {
		t.Fatalf("expected %d bytes, got %d", 44+2400*2, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 24000 {
		t.Fatalf("expected 24000 Hz, got %d", rate)
	}
	if len(gen.texts) != 1 || gen.texts[0] != "Hello there" || gen.voices[0] != "" {
		t.Fatalf("unexpected generator input %v %q", gen.texts, gen.voices)
	}
}

func TestSynthesizePassesRequestedVoice(t *testing.T) {
	gen := &fakeGenerator{result: &speechmodel.Synthesis{Audio: pcmPayload(10)}}

	if resp := synthesize(t, gen, `{"text":"hi","voice":"Puck"}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(gen.voices) != 1 || gen.voices[0] != "Puck" {
		t.Fatalf("voices = %q", gen.voices)
	}
}

func TestSynthesizeStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		gen  Generator
		body string
		want int
	}{
		{name: "empty audio", gen: &fakeGenerator{result: &speechmodel.Synthesis{}}, body: `{"text":"hi"}`, want: http.StatusNoContent},
		{name: "nil result", gen: &fakeGenerator{}, body: `{"text":"hi"}`, want: http.StatusNoContent},
		{name: "provider error", gen: &fakeGenerator{err: errors.New("boom")}, body: `{"text":"hi"}`, want: http.StatusBadGateway},
		{name: "timeout", gen: &fakeGenerator{err: context.DeadlineExceeded}, body: `{"text":"hi"}`, want: http.StatusGatewayTimeout},
		{name: "bad payload", gen: &fakeGenerator{result: &speechmodel.Synthesis{Audio: "%%%"}}, body: `{"text":"hi"}`, want: http.StatusBadGateway},
		{name: "blank text", gen: &fakeGenerator{}, body: `{"text":"  "}`, want: http.StatusBadRequest},
		{name: "malformed body", gen: &fakeGenerator{}, body: `{`, want: http.StatusBadRequest},
		{name: "disabled", gen: nil, body: `{"text":"hi"}`, want: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := synthesize(t, tc.gen, tc.body); resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}
