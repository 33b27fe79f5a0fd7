package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
)

var errSinkClosed = errors.New("audio output closed")

// socketSink 把浏览器的音频输出抽象为 playback.Sink：
// 播放、停止、恢复均以指令形式下发，播放结束由客户端回报
type socketSink struct {
	send func(msgType string, data any) error

	mu        sync.Mutex
	suspended bool
	closed    bool
	nextID    int64
	sources   map[int64]*socketSource
}

// newSocketSink 创建下发指令的输出端；浏览器音频上下文初始处于挂起状态
func newSocketSink(send func(msgType string, data any) error) *socketSink {
	return &socketSink{
		send:      send,
		suspended: true,
		sources:   make(map[int64]*socketSource),
	}
}

type startCommand struct {
	SourceID   int64  `json:"sourceId"`
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	DurationMs int64  `json:"durationMs"`
}

type sourceCommand struct {
	SourceID int64 `json:"sourceId"`
}

func (s *socketSink) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *socketSink) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send("audio.resume", nil); err != nil {
		return fmt.Errorf("resume audio output: %w", err)
	}
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	return nil
}

func (s *socketSink) CreateSource(buf *audio.Buffer) playback.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &socketSource{sink: s, id: s.nextID, buf: buf}
}

// markSuspended 客户端报告音频上下文被挂起
func (s *socketSink) markSuspended() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
}

// ended 处理客户端回报的播放结束；未知或已停止的音源直接忽略
func (s *socketSink) ended(id int64) {
	s.mu.Lock()
	src, ok := s.sources[id]
	if ok {
		delete(s.sources, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	src.finish()
}

// close 使后续音源无法连接，并丢弃所有未结束的音源
func (s *socketSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sources = make(map[int64]*socketSource)
}

type socketSource struct {
	sink *socketSink
	id   int64
	buf  *audio.Buffer

	mu      sync.Mutex
	onEnded func()
	started bool
	stopped bool
}

func (src *socketSource) Connect() error {
	src.sink.mu.Lock()
	defer src.sink.mu.Unlock()
	if src.sink.closed {
		return errSinkClosed
	}
	return nil
}

func (src *socketSource) OnEnded(fn func()) {
	src.mu.Lock()
	src.onEnded = fn
	src.mu.Unlock()
}

func (src *socketSource) Start() error {
	src.mu.Lock()
	if src.started {
		src.mu.Unlock()
		return errors.New("source already started")
	}
	src.started = true
	src.mu.Unlock()

	wav, err := src.buf.WAV()
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}

	src.sink.mu.Lock()
	if src.sink.closed {
		src.sink.mu.Unlock()
		return errSinkClosed
	}
	src.sink.sources[src.id] = src
	src.sink.mu.Unlock()

	cmd := startCommand{
		SourceID:   src.id,
		Audio:      base64.StdEncoding.EncodeToString(wav),
		Format:     "wav",
		DurationMs: src.buf.Duration().Milliseconds(),
	}
	if err := src.sink.send("audio.start", cmd); err != nil {
		src.sink.mu.Lock()
		delete(src.sink.sources, src.id)
		src.sink.mu.Unlock()
		return fmt.Errorf("send audio.start: %w", err)
	}
	log.Printf("[websocket] audio source %d started (%s)", src.id, src.buf.Duration().Round(time.Millisecond))
	return nil
}

func (src *socketSource) Stop() error {
	src.mu.Lock()
	if src.stopped {
		src.mu.Unlock()
		return playback.ErrSourceStopped
	}
	src.stopped = true
	src.mu.Unlock()

	src.sink.mu.Lock()
	delete(src.sink.sources, src.id)
	src.sink.mu.Unlock()

	if err := src.sink.send("audio.stop", sourceCommand{SourceID: src.id}); err != nil {
		log.Printf("[websocket] send audio.stop failed: %v", err)
	}
	return nil
}

func (src *socketSource) finish() {
	src.mu.Lock()
	if src.stopped {
		src.mu.Unlock()
		return
	}
	src.stopped = true
	fn := src.onEnded
	src.mu.Unlock()

	if fn != nil {
		fn()
	}
}
