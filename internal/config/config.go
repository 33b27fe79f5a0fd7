package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrMissingCredential 表示所选提供方缺少必需的密钥，服务无法启动。
var ErrMissingCredential = errors.New("missing credential")

// 提供方标识
const (
	ProviderGemini     = "gemini"
	ProviderArk        = "ark"
	ProviderOpenAI     = "openai"
	ProviderVolcengine = "volcengine"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Playback PlaybackConfig
	Cache    CacheConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	playback, err := loadPlaybackConfig()
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Server: server, AI: ai, Speech: speech, Playback: playback, Cache: cache}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查所选提供方的凭证是否齐全。
func (c *Config) Validate() error {
	if err := c.AI.validate(); err != nil {
		return err
	}
	if c.Speech.Enabled {
		if err := c.Speech.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述对话模型相关配置。
type AIConfig struct {
	Provider string
	Gemini   GeminiConfig
	Ark      ArkConfig
	OpenAI   OpenAIConfig
}

// GeminiConfig 描述 Gemini 访问参数，对话与语音共用同一个 API_KEY。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfig 描述 OpenAI 兼容接口参数。
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: ark requires ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and ARK_MODEL", ErrMissingCredential)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func (c AIConfig) validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%w: API_KEY environment variable not set", ErrMissingCredential)
		}
	case ProviderArk:
		if !c.Ark.Enabled() {
			return fmt.Errorf("%w: ark requires ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and ARK_MODEL", ErrMissingCredential)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("invalid AI_PROVIDER value %q", c.Provider)
	}
	return nil
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider: strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini)),
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		OpenAI: loadOpenAIConfig("OPENAI_MODEL", "gpt-4o-mini"),
	}, nil
}

func loadOpenAIConfig(modelKey, defaultModel string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:   getEnvOrDefault(modelKey, defaultModel),
	}
}

// SpeechConfig 描述语音合成相关配置
type SpeechConfig struct {
	Enabled    bool
	Provider   string
	Voice      string
	Timeout    time.Duration
	Gemini     GeminiSpeechConfig
	OpenAI     OpenAIConfig
	Volcengine VolcengineConfig
}

// GeminiSpeechConfig 描述 Gemini TTS 接口，BaseURL 为空时使用 SDK 默认地址
type GeminiSpeechConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// VolcengineConfig 描述火山引擎流式 TTS 凭证
type VolcengineConfig struct {
	AppID       string
	AccessToken string
	ResourceID  string
	URL         string
}

func (c SpeechConfig) validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%w: API_KEY environment variable not set", ErrMissingCredential)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrMissingCredential)
		}
	case ProviderVolcengine:
		if c.Volcengine.AppID == "" || c.Volcengine.AccessToken == "" {
			return fmt.Errorf("%w: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN are required", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("invalid SPEECH_PROVIDER value %q", c.Provider)
	}
	return nil
}

func loadSpeechConfig() (SpeechConfig, error) {
	enabled, err := parseBoolEnv("SPEECH_ENABLED", true)
	if err != nil {
		return SpeechConfig{}, err
	}

	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", ProviderGemini))

	defaultVoice := "Kore"
	switch provider {
	case ProviderOpenAI:
		defaultVoice = "alloy"
	case ProviderVolcengine:
		defaultVoice = "en_female_amy_jupiter_bigtts"
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		// 兼容旧配置
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		Enabled:  enabled,
		Provider: provider,
		Voice:    getEnvOrDefault("SPEECH_VOICE", defaultVoice),
		Timeout:  timeout,
		Gemini: GeminiSpeechConfig{
			APIKey:  strings.TrimSpace(os.Getenv("API_KEY")),
			Model:   getEnvOrDefault("SPEECH_GEMINI_MODEL", "gemini-2.5-flash-preview-tts"),
			BaseURL: strings.TrimSpace(os.Getenv("SPEECH_GEMINI_BASE_URL")),
		},
		OpenAI: loadOpenAIConfig("SPEECH_OPENAI_MODEL", "gpt-4o-mini-tts"),
		Volcengine: VolcengineConfig{
			AppID:       strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
			AccessToken: accessToken,
			ResourceID:  getEnvOrDefault("SPEECH_RESOURCE_ID", "seed-tts-2.0"),
			URL:         getEnvOrDefault("SPEECH_TTS_URL", "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"),
		},
	}, nil
}

// PlaybackConfig 描述语音播放节奏，零值表示使用播放器默认值。
type PlaybackConfig struct {
	StartDelay time.Duration
	StopDelay  time.Duration
}

func loadPlaybackConfig() (PlaybackConfig, error) {
	start, err := parseDurationEnv("PLAYBACK_START_DELAY", 0)
	if err != nil {
		return PlaybackConfig{}, err
	}

	stop, err := parseDurationEnv("PLAYBACK_STOP_DELAY", 0)
	if err != nil {
		return PlaybackConfig{}, err
	}

	return PlaybackConfig{StartDelay: start, StopDelay: stop}, nil
}

// CacheConfig 描述语音合成缓存，RedisURL 为空时不启用。
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

func loadCacheConfig() (CacheConfig, error) {
	ttl, err := parseDurationEnv("SPEECH_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return CacheConfig{}, err
	}

	return CacheConfig{
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		TTL:      ttl,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
