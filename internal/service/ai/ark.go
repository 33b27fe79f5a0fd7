package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/codementor/backend/internal/config"
)

// historyLimit 限制回放进提示词的历史消息条数
const historyLimit = 20

// ArkClient 运行 eino 链（system/history/query 模板接 ark 对话模型），
// 每个会话各自保存历史
type ArkClient struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkClient 创建 ark 对话模型并编译调用链
func NewArkClient(ctx context.Context, cfg config.ArkConfig) (*ArkClient, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newChainClient(ctx, chatModel)
}

func newChainClient(ctx context.Context, chatModel model.BaseChatModel) (*ArkClient, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkClient{chain: runnable}, nil
}

func (c *ArkClient) CreateSession(ctx context.Context, systemPrompt string) (Session, error) {
	return &chainSession{chain: c.chain, system: systemPrompt}, nil
}

type chainSession struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string

	mu      sync.Mutex
	history []*schema.Message
}

func (s *chainSession) SendMessageStream(ctx context.Context, text string) (Stream, error) {
	input := map[string]any{
		"system":  s.system,
		"history": s.recentHistory(),
		"query":   text,
	}

	reader, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	return &chainStream{session: s, reader: reader, query: text}, nil
}

func (s *chainSession) recentHistory() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if len(s.history) > historyLimit {
		start = len(s.history) - historyLimit
	}
	return append([]*schema.Message(nil), s.history[start:]...)
}

func (s *chainSession) commit(query, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, schema.UserMessage(query), schema.AssistantMessage(reply, nil))
}

type chainStream struct {
	session *chainSession
	reader  *schema.StreamReader[*schema.Message]
	query   string
	reply   strings.Builder
	done    bool
}

func (s *chainStream) Recv() (Chunk, error) {
	msg, err := s.reader.Recv()
	if errors.Is(err, io.EOF) {
		if !s.done {
			s.done = true
			s.session.commit(s.query, s.reply.String())
		}
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("ark stream: %w", err)
	}
	if msg == nil {
		return Chunk{}, nil
	}
	s.reply.WriteString(msg.Content)
	return Chunk{Text: msg.Content}, nil
}

func (s *chainStream) Close() {
	s.reader.Close()
}
