package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

var (
	// ErrEmptyText 合成文本为空
	ErrEmptyText = errors.New("speech text is empty")
	// ErrUnknownProvider 未知的语音提供方
	ErrUnknownProvider = errors.New("unknown speech provider")
)

// Generator 将文本合成为 base64 编码的 PCM16 语音，voice 为空时使用提供方默认音色
type Generator interface {
	Generate(ctx context.Context, text, voice string) (*speech.Synthesis, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	generator Generator
	timeout   time.Duration
}

// NewService 包装一个提供方，并为每次合成附加超时
func NewService(generator Generator, timeout time.Duration) *Service {
	return &Service{generator: generator, timeout: timeout}
}

// New 按配置构建提供方；store 非空时启用缓存
func New(cfg config.SpeechConfig, store Store, ttl time.Duration) (*Service, error) {
	generator, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}

	if store != nil {
		generator = NewCachedGenerator(generator, store, CacheKeyPrefix(cfg.Provider, cfg.Voice), ttl)
	}

	return NewService(generator, cfg.Timeout), nil
}

// NewGenerator 根据 SPEECH_PROVIDER 选择合成实现
func NewGenerator(cfg config.SpeechConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiGenerator(context.Background(), cfg.Gemini, cfg.Voice)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAI, cfg.Voice), nil
	case config.ProviderVolcengine:
		return NewVolcengineGenerator(cfg.Volcengine, cfg.Voice)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Generate 使用默认音色合成一段文本
func (s *Service) Generate(ctx context.Context, text string) (*speech.Synthesis, error) {
	return s.GenerateVoice(ctx, text, "")
}

// GenerateVoice 以指定音色合成，空白文本直接返回 ErrEmptyText
func (s *Service) GenerateVoice(ctx context.Context, text, voice string) (*speech.Synthesis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := s.generator.Generate(ctx, text, strings.TrimSpace(voice))
	if err != nil {
		return nil, err
	}

	if result.Empty() {
		log.Printf("[speech] synthesis returned no audio (%d chars)", len(text))
	} else {
		log.Printf("[speech] synthesized %d chars via %s in %s (cached=%v)", len(text), result.Provider, time.Since(started).Round(time.Millisecond), result.Cached)
	}
	return result, nil
}

func voiceOr(voice, fallback string) string {
	if voice == "" {
		return fallback
	}
	return voice
}
