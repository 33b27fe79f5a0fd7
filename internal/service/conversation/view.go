package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/model/chat"
	"github.com/zhouzirui/codementor/backend/internal/model/persona"
	"github.com/zhouzirui/codementor/backend/internal/service/ai"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
)

const (
	// PlaceholderText 标记仍在流式输出的回复
	PlaceholderText = "..."
	// ApologyText 流中断时替换回复的文本
	ApologyText = "Sorry, something went wrong. Please try again."
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrBusy              = errors.New("a reply is still streaming")
	ErrSpeechUnavailable = errors.New("no audio output attached")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotPlayable       = errors.New("only finished bot messages can be played")
)

// Speaker 同一时间至多播放一条消息
type Speaker interface {
	PlaySpeech(text string, onEnd func()) *playback.Attempt
	StopSpeech(onStopped func()) *playback.Attempt
}

// EventType 视图变化的类型
type EventType string

const (
	EventMessageAppended EventType = "message.appended"
	EventMessageUpdated  EventType = "message.updated"
	EventInputState      EventType = "input.state"
	EventPlaybackState   EventType = "playback.state"
)

// Event 描述一次变化；Busy 与 PlayingID 始终为变化后的状态，
// 无播放时 PlayingID 为 0
type Event struct {
	Type      EventType     `json:"type"`
	Message   *chat.Message `json:"message,omitempty"`
	Busy      bool          `json:"busy"`
	PlayingID int64         `json:"playingId"`
}

// Snapshot 视图的完整可观察状态
type Snapshot struct {
	Messages  []chat.Message `json:"messages"`
	Busy      bool           `json:"busy"`
	PlayingID int64          `json:"playingId"`
}

// Options 视图参数，Now 默认为 time.Now
type Options struct {
	Now func() time.Time
}

// View 对应一个聊天界面：消息记录、流式占位、
// 输入是否禁用以及正在播放的消息。
//
// 订阅者在持有视图锁时被调用以保证事件有序，
// 订阅者不得回调视图
type View struct {
	session ai.Session
	persona persona.Persona
	now     func() time.Time

	// toggleMu 保证播放请求按序到达 speaker
	toggleMu sync.Mutex

	mu          sync.Mutex
	ids         idSource
	messages    []chat.Message
	busy        bool
	streamingID int64
	playingID   int64
	speaker     Speaker
	subscribers map[int]func(Event)
	nextSub     int
}

// NewView 以人设指令打开对话会话并发送问候
func NewView(ctx context.Context, client ai.Client, p persona.Persona, opts *Options) (*View, error) {
	session, err := client.CreateSession(ctx, p.SystemInstruction)
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}

	now := time.Now
	if opts != nil && opts.Now != nil {
		now = opts.Now
	}

	v := &View{
		session:     session,
		persona:     p,
		now:         now,
		ids:         idSource{now: now},
		subscribers: make(map[int]func(Event)),
	}

	v.mu.Lock()
	v.appendLocked(chat.SenderBot, p.OpeningLine)
	v.mu.Unlock()

	return v, nil
}

// Persona 返回视图使用的人设
func (v *View) Persona() persona.Persona {
	return v.persona
}

// Submit 发送一条用户消息并阻塞到回复结束。
// 流失败时消息记录中保留道歉消息并返回错误
func (v *View) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	v.mu.Lock()
	if v.busy {
		v.mu.Unlock()
		return ErrBusy
	}
	v.appendLocked(chat.SenderUser, text)
	v.setBusyLocked(true)
	v.mu.Unlock()

	err := v.exchange(ctx, text)

	v.mu.Lock()
	v.streamingID = 0
	v.setBusyLocked(false)
	v.mu.Unlock()

	return err
}

func (v *View) exchange(ctx context.Context, text string) error {
	stream, err := v.session.SendMessageStream(ctx, text)
	if err != nil {
		v.fail(0)
		return fmt.Errorf("open reply stream: %w", err)
	}
	defer stream.Close()

	v.mu.Lock()
	id := v.appendLocked(chat.SenderBot, PlaceholderText).ID
	v.streamingID = id
	v.mu.Unlock()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			v.fail(id)
			return fmt.Errorf("read reply stream: %w", err)
		}

		reply.WriteString(chunk.Text)
		v.updateText(id, reply.String()+PlaceholderText)
	}

	v.updateText(id, strings.TrimSpace(reply.String()))
	return nil
}

// fail 用道歉文本替换占位消息，
// 尚无占位消息时追加一条新消息
func (v *View) fail(placeholderID int64) {
	if placeholderID != 0 {
		v.updateText(placeholderID, ApologyText)
		return
	}
	v.mu.Lock()
	v.appendLocked(chat.SenderBot, ApologyText)
	v.mu.Unlock()
}

// TogglePlayback 若 id 正在播放则停止，否则播放它
// （会抢占正在播放的其他消息）
func (v *View) TogglePlayback(id int64) error {
	v.toggleMu.Lock()
	defer v.toggleMu.Unlock()

	v.mu.Lock()
	speaker := v.speaker
	if speaker == nil {
		v.mu.Unlock()
		return ErrSpeechUnavailable
	}

	idx := v.indexLocked(id)
	if idx < 0 {
		v.mu.Unlock()
		return ErrMessageNotFound
	}
	msg := v.messages[idx]
	if !msg.IsBot() || id == v.streamingID {
		v.mu.Unlock()
		return ErrNotPlayable
	}

	if v.playingID == id {
		v.mu.Unlock()
		speaker.StopSpeech(func() { v.clearPlaying(speaker, id) })
		return nil
	}

	v.playingID = id
	v.emitLocked(Event{Type: EventPlaybackState})
	v.mu.Unlock()

	speaker.PlaySpeech(msg.Text, func() { v.clearPlaying(speaker, id) })
	return nil
}

func (v *View) clearPlaying(speaker Speaker, id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.speaker != speaker || v.playingID != id {
		return
	}
	v.playingID = 0
	v.emitLocked(Event{Type: EventPlaybackState})
}

// AttachSpeaker 将播放路由到 speaker，替换之前的 speaker
func (v *View) AttachSpeaker(speaker Speaker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speaker = speaker
	v.resetPlayingLocked()
}

// DetachSpeaker 仅当 speaker 仍是当前挂载者时将其移除
func (v *View) DetachSpeaker(speaker Speaker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.speaker != speaker {
		return
	}
	v.speaker = nil
	v.resetPlayingLocked()
}

func (v *View) resetPlayingLocked() {
	if v.playingID == 0 {
		return
	}
	v.playingID = 0
	v.emitLocked(Event{Type: EventPlaybackState})
}

// Messages 返回消息记录的副本
func (v *View) Messages() []chat.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]chat.Message(nil), v.messages...)
}

// Busy 报告输入是否禁用
func (v *View) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.busy
}

// PlayingID 返回正在播放的消息ID，无则为 0
func (v *View) PlayingID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playingID
}

// Snapshot 同时获取消息记录与状态
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Messages:  append([]chat.Message(nil), v.messages...),
		Busy:      v.busy,
		PlayingID: v.playingID,
	}
}

// Subscribe 为后续每个事件注册 fn，返回取消函数
func (v *View) Subscribe(fn func(Event)) func() {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	v.subscribers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.subscribers, id)
		v.mu.Unlock()
	}
}

func (v *View) appendLocked(sender chat.Sender, text string) chat.Message {
	msg := chat.Message{
		ID:        v.ids.next(),
		Text:      text,
		Sender:    sender,
		Timestamp: displayTime(v.now()),
	}
	v.messages = append(v.messages, msg)
	v.emitLocked(Event{Type: EventMessageAppended, Message: &msg})
	return msg
}

func (v *View) updateText(id int64, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := v.indexLocked(id)
	if idx < 0 {
		log.Printf("[conversation] update for unknown message %d", id)
		return
	}
	v.messages[idx].Text = text
	msg := v.messages[idx]
	v.emitLocked(Event{Type: EventMessageUpdated, Message: &msg})
}

func (v *View) setBusyLocked(busy bool) {
	v.busy = busy
	v.emitLocked(Event{Type: EventInputState})
}

func (v *View) indexLocked(id int64) int {
	for i := len(v.messages) - 1; i >= 0; i-- {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *View) emitLocked(ev Event) {
	ev.Busy = v.busy
	ev.PlayingID = v.playingID
	for _, fn := range v.subscribers {
		fn(ev)
	}
}
