package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/codementor/backend/internal/config"
)

// OpenAIClient 从 OpenAI 兼容接口流式获取对话补全
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient 创建客户端，BaseURL 非空时覆盖默认地址
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}
}

func (c *OpenAIClient) CreateSession(ctx context.Context, systemPrompt string) (Session, error) {
	return &openAISession{
		client: c.client,
		model:  c.model,
		history: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
	}, nil
}

type openAISession struct {
	client *openai.Client
	model  string

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func (s *openAISession) SendMessageStream(ctx context.Context, text string) (Stream, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}

	s.mu.Lock()
	messages := append(append([]openai.ChatCompletionMessage(nil), s.history...), user)
	s.mu.Unlock()

	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion stream: %w", err)
	}

	return &openAIStream{session: s, stream: stream, user: user}, nil
}

func (s *openAISession) commit(user openai.ChatCompletionMessage, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, user, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
}

type openAIStream struct {
	session *openAISession
	stream  *openai.ChatCompletionStream
	user    openai.ChatCompletionMessage
	reply   strings.Builder
	done    bool
}

func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		if !s.done {
			s.done = true
			s.session.commit(s.user, s.reply.String())
		}
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("openai stream: %w", err)
	}

	var chunk Chunk
	if len(resp.Choices) > 0 {
		chunk.Text = resp.Choices[0].Delta.Content
	}
	s.reply.WriteString(chunk.Text)
	return chunk, nil
}

func (s *openAIStream) Close() {
	s.stream.Close()
}
