package speech

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/codementor/backend/internal/service/conversation"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// ViewSource 按会话查找对话视图
type ViewSource interface {
	View(ctx context.Context, sessionID string) (*conversation.View, error)
}

// WebSocketHandler WebSocket对话处理器：每个连接拥有一个音频输出端和一个播放调度器
type WebSocketHandler struct {
	views       ViewSource
	generator   Generator
	playbackOpt *playback.Options
	upgrader    websocket.Upgrader
	conns       *connectionRegistry
}

// NewWebSocketHandler 创建WebSocket处理器，generator 为空时不提供语音播放
func NewWebSocketHandler(views ViewSource, generator Generator, opts *playback.Options, allowOrigin func(*http.Request) bool) *WebSocketHandler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		views:       views,
		generator:   generator,
		playbackOpt: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     allowOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: newConnectionRegistry(),
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubmitMessage 用户提交的文本
type SubmitMessage struct {
	Text string `json:"text"`
}

// ToggleMessage 切换某条消息的播放状态
type ToggleMessage struct {
	MessageID int64 `json:"messageId"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client 一个已升级的连接；写操作串行化
type client struct {
	sessionID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	once      sync.Once
}

func (c *client) send(msgType string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *client) sendError(message string) {
	if err := c.send("error", map[string]string{"message": message}); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.conn.Close()
	})
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.views.View(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	c := &client{sessionID: sessionID, conn: conn}
	defer c.close()

	if previous := h.conns.replace(sessionID, c); previous != nil {
		log.Printf("[websocket] replacing connection for session: %s", sessionID)
		previous.close()
	}
	defer h.conns.remove(sessionID, c)

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsubscribe := view.Subscribe(func(ev conversation.Event) {
		if err := c.send(string(ev.Type), ev); err != nil {
			log.Printf("[websocket] write event failed: %v", err)
		}
	})
	defer unsubscribe()

	var sink *socketSink
	if h.generator != nil {
		sink = newSocketSink(c.send)
		scheduler := playback.NewScheduler(h.generator, sink, h.playbackOpt)
		view.AttachSpeaker(scheduler)
		defer func() {
			view.DetachSpeaker(scheduler)
			scheduler.Close()
			sink.close()
		}()
	}

	if err := c.send("snapshot", view.Snapshot()); err != nil {
		log.Printf("[websocket] write snapshot failed: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		h.handleMessage(ctx, c, view, sink, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *client, view *conversation.View, sink *socketSink, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		var submit SubmitMessage
		if err := json.Unmarshal(msg.Data, &submit); err != nil {
			c.sendError("invalid submit payload")
			return
		}
		if strings.TrimSpace(submit.Text) == "" {
			c.sendError(conversation.ErrEmptyMessage.Error())
			return
		}
		if view.Busy() {
			c.sendError(conversation.ErrBusy.Error())
			return
		}
		go h.submit(ctx, c, view, submit.Text)
	case "toggle":
		var toggle ToggleMessage
		if err := json.Unmarshal(msg.Data, &toggle); err != nil {
			c.sendError("invalid toggle payload")
			return
		}
		if err := view.TogglePlayback(toggle.MessageID); err != nil {
			c.sendError(err.Error())
		}
	case "audio.ended":
		var ended sourceCommand
		if err := json.Unmarshal(msg.Data, &ended); err != nil {
			c.sendError("invalid audio.ended payload")
			return
		}
		if sink != nil {
			sink.ended(ended.SourceID)
		}
	case "audio.suspended":
		if sink != nil {
			sink.markSuspended()
		}
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// submit 在后台完成一次问答；失败时道歉消息已由视图写入，这里只通知错误
func (h *WebSocketHandler) submit(ctx context.Context, c *client, view *conversation.View, text string) {
	err := view.Submit(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, conversation.ErrEmptyMessage):
		c.sendError(err.Error())
	default:
		log.Printf("[websocket] exchange failed session=%s: %v", c.sessionID, err)
		c.sendError("reply failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// connectionRegistry 每个会话只保留一个活动连接
type connectionRegistry struct {
	mu    sync.Mutex
	conns map[string]*client
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{conns: make(map[string]*client)}
}

// replace 登记新连接并返回被替换的旧连接
func (r *connectionRegistry) replace(sessionID string, c *client) *client {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.conns[sessionID]
	r.conns[sessionID] = c
	return previous
}

// remove 仅当登记的仍是该连接时移除
func (r *connectionRegistry) remove(sessionID string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[sessionID] == c {
		delete(r.conns, sessionID)
	}
}

func (r *connectionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
