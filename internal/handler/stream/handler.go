package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/codementor/backend/internal/model/chat"
	"github.com/zhouzirui/codementor/backend/internal/service/conversation"
	"github.com/zhouzirui/codementor/backend/pkg/utils"
)

// ViewSource 按会话查找对话视图
type ViewSource interface {
	View(ctx context.Context, sessionID string) (*conversation.View, error)
}

// Handler 通过 Server-Sent Events 推送一次提交产生的视图事件
type Handler struct {
	views ViewSource
}

// New 创建流式处理器
func New(views ViewSource) *Handler {
	return &Handler{views: views}
}

// RegisterRoutes 注册流式接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse 每个 SSE 帧的数据
type StreamResponse struct {
	Event     string        `json:"event"`
	SessionID string        `json:"sessionId,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Busy      bool          `json:"busy"`
	PlayingID int64         `json:"playingId,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	view, err := h.views.View(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	if view.Busy() {
		utils.RespondError(w, http.StatusConflict, conversation.ErrBusy.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, view, userMessage); err != nil {
		log.Printf("[stream] session=%s: %v", sessionID, err)
	}
}

// HandleStreamRequest 提交 userMessage，并转发视图事件直到回复结束
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, view *conversation.View, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	done := make(chan struct{})
	events := make(chan conversation.Event, 16)
	unsubscribe := view.Subscribe(func(ev conversation.Event) {
		if ev.Type == conversation.EventPlaybackState {
			return
		}
		select {
		case events <- ev:
		case <-done:
		}
	})
	// 必须先关闭 done：阻塞中的订阅者持有视图锁，
	// 而 unsubscribe 需要这把锁
	defer func() {
		close(done)
		unsubscribe()
	}()

	if err := utils.SendSSEEvent(w, flusher, "start", StreamResponse{Event: "start", SessionID: sessionID, Busy: view.Busy()}); err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() { result <- view.Submit(ctx, userMessage) }()

	for {
		select {
		case ev := <-events:
			if err := h.relay(w, flusher, sessionID, ev); err != nil {
				return err
			}
		case err := <-result:
			// Submit 同步发出事件，返回时其产生的事件都已入队
			for drained := false; !drained; {
				select {
				case ev := <-events:
					if err := h.relay(w, flusher, sessionID, ev); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			return h.finish(w, flusher, sessionID, err)
		}
	}
}

func (h *Handler) relay(w http.ResponseWriter, flusher http.Flusher, sessionID string, ev conversation.Event) error {
	return utils.SendSSEEvent(w, flusher, string(ev.Type), StreamResponse{
		Event:     string(ev.Type),
		SessionID: sessionID,
		Message:   ev.Message,
		Busy:      ev.Busy,
		PlayingID: ev.PlayingID,
	})
}

// finish 以 end 结束流，交互失败时发送 error；
// 道歉消息已作为 message 事件发送
func (h *Handler) finish(w http.ResponseWriter, flusher http.Flusher, sessionID string, submitErr error) error {
	if submitErr != nil {
		msg := "reply failed"
		if errors.Is(submitErr, conversation.ErrBusy) || errors.Is(submitErr, conversation.ErrEmptyMessage) {
			msg = submitErr.Error()
		}
		if err := utils.SendSSEEvent(w, flusher, "error", StreamResponse{Event: "error", SessionID: sessionID, Error: msg}); err != nil {
			return err
		}
		return submitErr
	}

	log.Printf("[stream] completed response for session=%s", sessionID)
	return utils.SendSSEEvent(w, flusher, "end", StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
}
