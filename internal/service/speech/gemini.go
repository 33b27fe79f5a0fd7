package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

// GeminiGenerator 通过 genai SDK 调用 Gemini TTS 模型
type GeminiGenerator struct {
	client *genai.Client
	model  string
	voice  string
}

// NewGeminiGenerator 创建 Gemini 语音合成器，BaseURL 为空时使用 SDK 默认地址
func NewGeminiGenerator(ctx context.Context, cfg config.GeminiSpeechConfig, voice string) (*GeminiGenerator, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini tts client: %w", err)
	}

	return &GeminiGenerator{client: client, model: cfg.Model, voice: voice}, nil
}

// Generate 请求音频模态输出，返回第一个候选的内联音频
func (g *GeminiGenerator) Generate(ctx context.Context, text, voice string) (*speech.Synthesis, error) {
	voice = voiceOr(voice, g.voice)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini tts request failed: %w", err)
	}

	result := &speech.Synthesis{
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
		Voice:      voice,
		Provider:   config.ProviderGemini,
		RequestID:  resp.ResponseID,
		CreatedAt:  time.Now(),
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if inline := resp.Candidates[0].Content.Parts[0].InlineData; inline != nil && len(inline.Data) > 0 {
			result.Audio = base64.StdEncoding.EncodeToString(inline.Data)
		}
	}

	return result, nil
}
