package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zhouzirui/codementor/backend/internal/handler/chat"
	"github.com/zhouzirui/codementor/backend/internal/handler/persona"
	"github.com/zhouzirui/codementor/backend/internal/handler/speech"
	"github.com/zhouzirui/codementor/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/codementor/backend/internal/middleware"
	personaModel "github.com/zhouzirui/codementor/backend/internal/model/persona"
	chatService "github.com/zhouzirui/codementor/backend/internal/service/chat"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
	"github.com/zhouzirui/codementor/backend/pkg/utils"
)

// Dependencies 汇总 HTTP 层依赖；Speech 为空时合成接口返回 503，
// WebSocket 连接不携带音频
type Dependencies struct {
	Personas       personaModel.Store
	Chat           *chatService.Service
	Speech         speech.Generator
	SpeechProvider string
	Playback       *playback.Options
	AllowedOrigins []string
}

// NewRouter 将 HTTP 路由接入核心服务
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	personaHandler := persona.New(deps.Personas)
	chatHandler := chat.New(deps.Chat)
	streamHandler := stream.New(deps.Chat)
	speechHandler := speech.New(deps.Speech, deps.SpeechProvider)
	wsHandler := speech.NewWebSocketHandler(deps.Chat, deps.Speech, deps.Playback, originChecker(deps.AllowedOrigins))
	offline := middlewarePkg.NewOffline()

	r.Route("/api", func(api chi.Router) {
		// 只读路由在失败时回退到上一次成功的响应
		api.Group(func(ro chi.Router) {
			ro.Use(offline.Handler)
			ro.Get("/health", handleHealth)
			personaHandler.RegisterRoutes(ro)
			chatHandler.RegisterReadRoutes(ro)
		})

		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// originChecker 与 CORS 白名单保持一致，用于 WebSocket 升级
func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return nil
		}
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
