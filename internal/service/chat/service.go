package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/codementor/backend/internal/model/chat"
	"github.com/zhouzirui/codementor/backend/internal/model/persona"
	"github.com/zhouzirui/codementor/backend/internal/service/ai"
	"github.com/zhouzirui/codementor/backend/internal/service/conversation"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
)

type entry struct {
	session chat.Session
	view    *conversation.View
}

// Service 保存所有存活会话及其对话视图，
// 进程退出后不保留
type Service struct {
	client   ai.Client
	personas persona.Store
	viewOpts *conversation.Options

	mu       sync.RWMutex
	sessions map[string]entry
}

// NewService 创建会话注册表，通过 client 打开对话会话
func NewService(client ai.Client, personas persona.Store, viewOpts *conversation.Options) *Service {
	return &Service{
		client:   client,
		personas: personas,
		viewOpts: viewOpts,
		sessions: make(map[string]entry),
	}
}

// CreateSession 创建绑定人设的匿名会话，
// 并以人设的开场白问候
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		return chat.Session{}, ErrPersonaRequired
	}
	p, ok := s.personas.FindByID(personaID)
	if !ok {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	view, err := conversation.NewView(ctx, s.client, p, s.viewOpts)
	if err != nil {
		return chat.Session{}, err
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = entry{session: session, view: view}
	s.mu.Unlock()

	log.Printf("[conversation] session %s opened with persona %s", session.ID, personaID)
	return session, nil
}

// GetSession 按ID获取会话
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return e.session, nil
}

// View 返回会话的对话视图
func (s *Service) View(_ context.Context, sessionID string) (*conversation.View, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.view, nil
}

// LoadTranscript 按显示顺序返回会话消息的副本
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.view.Messages(), nil
}

// DeleteSession 删除会话，已挂载的播放器由其持有者负责释放
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Service) lookup(sessionID string) (entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return entry{}, ErrSessionNotFound
	}
	return e, nil
}
