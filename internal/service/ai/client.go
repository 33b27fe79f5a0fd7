package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/codementor/backend/internal/config"
)

// Chunk 流式回复的一个增量
type Chunk struct {
	Text string
}

// Client 打开绑定系统指令的对话会话
type Client interface {
	CreateSession(ctx context.Context, systemPrompt string) (Session, error)
}

// Session 有状态的对话，历史由提供方或会话自身维护
type Session interface {
	SendMessageStream(ctx context.Context, text string) (Stream, error)
}

// Stream 按到达顺序产出分片；回复完成时 Recv 返回 io.EOF，
// 其他错误都会中止本次交互
type Stream interface {
	Recv() (Chunk, error)
	Close()
}

// NewClient 按 cfg.Provider 构建对话客户端
func NewClient(ctx context.Context, cfg config.AIConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.Gemini)
	case config.ProviderArk:
		return NewArkClient(ctx, cfg.Ark)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
