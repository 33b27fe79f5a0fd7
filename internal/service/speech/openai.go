package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

// OpenAIGenerator 使用 OpenAI 语音接口输出 24kHz 单声道 PCM
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAIGenerator 创建 OpenAI 语音合成器
func NewOpenAIGenerator(cfg config.OpenAIConfig, voice string) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		voice:  voice,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, text, voice string) (*speech.Synthesis, error) {
	voice = voiceOr(voice, g.voice)
	resp, err := g.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(g.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai speech response: %w", err)
	}

	result := &speech.Synthesis{
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
		Voice:      voice,
		Provider:   config.ProviderOpenAI,
		CreatedAt:  time.Now(),
	}
	if len(pcm) > 0 {
		result.Audio = base64.StdEncoding.EncodeToString(pcm)
	}
	return result, nil
}
