package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/codementor/backend/internal/model/chat"
	"github.com/zhouzirui/codementor/backend/internal/model/persona"
	chatService "github.com/zhouzirui/codementor/backend/internal/service/chat"
	"github.com/zhouzirui/codementor/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
	}
}

// RegisterRoutes 注册会话创建与删除路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
}

// RegisterReadRoutes 注册只读路由，可挂在离线回退中间件之后
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/messages", h.handleMessages)
}

type createSessionResponse struct {
	Session  chat.Session   `json:"session"`
	Messages []chat.Message `json:"messages"`
}

// handleCreateSession 创建会话，未指定persona时使用默认persona
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PersonaID == "" {
		payload.PersonaID = persona.DefaultID
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		if errors.Is(err, chatService.ErrPersonaNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		log.Printf("[conversation] create session failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "chat session unavailable")
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, createSessionResponse{Session: session, Messages: messages})
}

// handleMessages 返回会话当前的消息列表、输入状态与播放状态
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatSvc.View(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, view.Snapshot())
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
