package ai

import (
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
)

type fakeIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
}

func (it *fakeIterator) Next() (*genai.GenerateContentResponse, error) {
	if len(it.responses) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		return nil, iterator.Done
	}
	resp := it.responses[0]
	it.responses = it.responses[1:]
	return resp, nil
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{name: "nil response", resp: nil, want: ""},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ""},
		{name: "nil content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, want: ""},
		{name: "text parts", resp: textResponse(genai.Text("Big-O "), genai.Text("describes growth")), want: "Big-O describes growth"},
		{name: "skips non-text parts", resp: textResponse(genai.Blob{MIMEType: "audio/L16", Data: []byte{1}}, genai.Text("ok")), want: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.resp); got != tt.want {
				t.Errorf("extractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGeminiStreamMapsDoneToEOF(t *testing.T) {
	var cancelled bool
	stream := &geminiStream{
		iter:   &fakeIterator{responses: []*genai.GenerateContentResponse{textResponse(genai.Text("Hello")), textResponse(genai.Text(" world"))}},
		cancel: func() { cancelled = true },
	}

	var got string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		got += chunk.Text
	}
	if got != "Hello world" {
		t.Fatalf("streamed text = %q", got)
	}

	stream.Close()
	if !cancelled {
		t.Fatal("Close must cancel the request context")
	}
}

func TestGeminiStreamWrapsErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	stream := &geminiStream{
		iter:   &fakeIterator{responses: []*genai.GenerateContentResponse{textResponse(genai.Text("partial"))}, err: boom},
		cancel: func() {},
	}

	if chunk, err := stream.Recv(); err != nil || chunk.Text != "partial" {
		t.Fatalf("first Recv = %+v, %v", chunk, err)
	}
	_, err := stream.Recv()
	if !errors.Is(err, boom) || errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
