package speech

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
	"github.com/zhouzirui/codementor/backend/pkg/utils"
)

// Generator 抽象语音合成，便于测试与替换实现；Generate 使用默认音色
type Generator interface {
	Generate(ctx context.Context, text string) (*speech.Synthesis, error)
	GenerateVoice(ctx context.Context, text, voice string) (*speech.Synthesis, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	generator Generator
	provider  string
}

// New 创建语音处理器，generator 为空时合成接口返回 503
func New(generator Generator, provider string) *Handler {
	return &Handler{
		generator: generator,
		provider:  provider,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
}

// handleSynthesize 将文本合成为 24 kHz 单声道 WAV；无音频时返回 204
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis unavailable")
		return
	}

	var req speech.SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.generator.GenerateVoice(r.Context(), req.Text, req.Voice)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		utils.RespondError(w, status, "speech synthesis failed")
		return
	}
	if result.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	wav, err := encodeWAV(result)
	if err != nil {
		log.Printf("[speech] invalid audio payload: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "invalid audio payload")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("Content-Disposition", "inline; filename=speech.wav")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(wav); err != nil {
		log.Printf("failed to write audio response: %v", err)
	}
}

// encodeWAV 把合成结果的 base64 PCM16 封装为 WAV 文件
func encodeWAV(result *speech.Synthesis) ([]byte, error) {
	rate, channels := result.SampleRate, result.Channels
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	if channels <= 0 {
		channels = audio.DefaultChannels
	}
	buf, err := audio.DecodeBase64PCM(result.Audio, rate, channels)
	if err != nil {
		return nil, err
	}
	return buf.WAV()
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.generator == nil {
		status = "disabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"service":  "speech",
		"provider": h.provider,
	})
}
