package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zhouzirui/codementor/backend/internal/config"
)

// GeminiClient 通过 generative-ai-go SDK 访问 Gemini；流式回复完整读完后，
// SDK 的 ChatSession 会自动记录历史
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient 使用 API key 创建 Gemini 客户端
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// Close 释放底层连接
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) CreateSession(ctx context.Context, systemPrompt string) (Session, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &geminiSession{chat: model.StartChat()}, nil
}

type geminiSession struct {
	chat *genai.ChatSession
}

func (s *geminiSession) SendMessageStream(ctx context.Context, text string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &geminiStream{iter: s.chat.SendMessageStream(ctx, genai.Text(text)), cancel: cancel}, nil
}

// responseIterator 由 *genai.GenerateContentResponseIterator 实现，便于测试替换
type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type geminiStream struct {
	iter   responseIterator
	cancel context.CancelFunc
}

func (s *geminiStream) Recv() (Chunk, error) {
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("gemini stream: %w", err)
	}
	return Chunk{Text: extractText(resp)}, nil
}

func (s *geminiStream) Close() {
	s.cancel()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}
