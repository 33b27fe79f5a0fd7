package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

const (
	// DefaultStartDelay 音频就绪后到开始发声的间隔
	DefaultStartDelay = 2 * time.Second
	// DefaultStopDelay 停止活动音源前的去抖间隔
	DefaultStopDelay = 2 * time.Second
)

// Generator 为调度器合成语音
type Generator interface {
	Generate(ctx context.Context, text string) (*speech.Synthesis, error)
}

// Options 调度器的时间与解码参数
type Options struct {
	StartDelay time.Duration
	StopDelay  time.Duration
	SampleRate int
	Channels   int
	Clock      Clock
}

// DefaultOptions 返回默认的 2s/2s 节奏，24 kHz 单声道
func DefaultOptions() *Options {
	return &Options{
		StartDelay: DefaultStartDelay,
		StopDelay:  DefaultStopDelay,
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
		Clock:      SystemClock(),
	}
}

// State 调度器在播放生命周期中的位置
type State string

const (
	StateIdle         State = "idle"
	StateSynthesizing State = "synthesizing"
	StatePendingStart State = "pending_start"
	StatePlaying      State = "playing"
	StatePendingStop  State = "pending_stop"
)

var errEmptyText = errors.New("speech text is empty")

type pendingTimer struct {
	timer Timer
}

type activeSource struct {
	source Source
}

// Scheduler 将播放请求串行到唯一的当前尝试上。
// 每次 PlaySpeech 或 StopSpeech 都会作废上一次调用仍在进行的工作，
// 因此任何时刻至多一个音源在发声
type Scheduler struct {
	generator Generator
	sink      Sink
	opts      Options

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu              sync.Mutex
	attempt         uint64
	cancelSynthesis context.CancelFunc
	startTimer      *pendingTimer
	stopTimer       *pendingTimer
	active          *activeSource
	closed          bool
}

// NewScheduler 创建独占 sink 播放的调度器
func NewScheduler(generator Generator, sink Sink, opts *Options) *Scheduler {
	resolved := *DefaultOptions()
	if opts != nil {
		if opts.StartDelay > 0 {
			resolved.StartDelay = opts.StartDelay
		}
		if opts.StopDelay > 0 {
			resolved.StopDelay = opts.StopDelay
		}
		if opts.SampleRate > 0 {
			resolved.SampleRate = opts.SampleRate
		}
		if opts.Channels > 0 {
			resolved.Channels = opts.Channels
		}
		if opts.Clock != nil {
			resolved.Clock = opts.Clock
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		generator:  generator,
		sink:       sink,
		opts:       resolved,
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// PlaySpeech 停止当前播放，合成 text 并在开始延迟后播放。
// 自然结束、失败或未产生音频时 onEnd 触发一次；
// 被后续调用取代时永不触发
func (s *Scheduler) PlaySpeech(text string, onEnd func()) *Attempt {
	attempt := newAttempt(onEnd)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		attempt.complete()
		return attempt
	}
	s.resetLocked()
	id := s.invalidateLocked()
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelSynthesis = cancel
	s.mu.Unlock()

	go s.synthesize(ctx, id, text, attempt)
	return attempt
}

// StopSpeech 立即取消待开始的播放，或在停止延迟后停止活动音源。
// 未被取代时 onStopped 触发一次
func (s *Scheduler) StopSpeech(onStopped func()) *Attempt {
	attempt := newAttempt(onStopped)

	s.mu.Lock()
	s.invalidateLocked()

	if s.startTimer != nil {
		s.startTimer.timer.Stop()
		s.startTimer = nil
		s.mu.Unlock()
		attempt.complete()
		return attempt
	}

	if s.stopTimer != nil {
		s.stopTimer.timer.Stop()
		s.stopTimer = nil
	}

	if s.active == nil || s.closed {
		s.mu.Unlock()
		attempt.complete()
		return attempt
	}

	pending := &pendingTimer{}
	pending.timer = s.opts.Clock.AfterFunc(s.opts.StopDelay, func() {
		s.halt(pending, attempt)
	})
	s.stopTimer = pending
	s.mu.Unlock()

	return attempt
}

// State 返回当前尝试所处的阶段
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopTimer != nil:
		return StatePendingStop
	case s.active != nil:
		return StatePlaying
	case s.startTimer != nil:
		return StatePendingStart
	case s.cancelSynthesis != nil:
		return StateSynthesizing
	default:
		return StateIdle
	}
}

// Close 清理所有待执行工作，未完成的尝试不会再完成
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.invalidateLocked()
	s.resetLocked()
	s.mu.Unlock()

	s.cancelBase()
}

func (s *Scheduler) synthesize(ctx context.Context, id uint64, text string, attempt *Attempt) {
	buf, err := s.prepare(ctx, text)

	s.mu.Lock()
	if id != s.attempt || s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancelSynthesis != nil {
		s.cancelSynthesis()
		s.cancelSynthesis = nil
	}

	if err != nil {
		log.Printf("[playback] speech attempt %d failed: %v", id, err)
		s.resetLocked()
		s.mu.Unlock()
		attempt.complete()
		return
	}

	if buf == nil {
		log.Printf("[playback] speech attempt %d produced no audio", id)
		s.resetLocked()
		s.mu.Unlock()
		attempt.complete()
		return
	}

	pending := &pendingTimer{}
	pending.timer = s.opts.Clock.AfterFunc(s.opts.StartDelay, func() {
		s.begin(pending, buf, attempt)
	})
	s.startTimer = pending
	s.mu.Unlock()
}

// prepare 在合成未产生音频时返回 nil 缓冲且不返回错误
func (s *Scheduler) prepare(ctx context.Context, text string) (*audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyText
	}

	result, err := s.generator.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	if result == nil || result.Audio == "" {
		return nil, nil
	}

	buf, err := audio.DecodeBase64PCM(result.Audio, s.opts.SampleRate, s.opts.Channels)
	if err != nil {
		return nil, fmt.Errorf("decode speech: %w", err)
	}

	if s.sink.Suspended() {
		if err := s.sink.Resume(ctx); err != nil {
			return nil, fmt.Errorf("resume output: %w", err)
		}
	}

	return buf, nil
}

func (s *Scheduler) begin(pending *pendingTimer, buf *audio.Buffer, attempt *Attempt) {
	s.mu.Lock()
	if s.startTimer != pending {
		s.mu.Unlock()
		return
	}
	s.startTimer = nil

	source := s.sink.CreateSource(buf)
	if err := source.Connect(); err != nil {
		log.Printf("[playback] connect source failed: %v", err)
		s.mu.Unlock()
		attempt.complete()
		return
	}

	current := &activeSource{source: source}
	s.active = current
	source.OnEnded(func() {
		s.ended(current, attempt)
	})

	if err := source.Start(); err != nil {
		log.Printf("[playback] start source failed: %v", err)
		source.OnEnded(nil)
		s.active = nil
		s.mu.Unlock()
		attempt.complete()
		return
	}
	s.mu.Unlock()
}

func (s *Scheduler) ended(current *activeSource, attempt *Attempt) {
	s.mu.Lock()
	if s.active != current {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.mu.Unlock()

	attempt.complete()
}

func (s *Scheduler) halt(pending *pendingTimer, attempt *Attempt) {
	s.mu.Lock()
	if s.stopTimer != pending {
		s.mu.Unlock()
		return
	}
	s.stopTimer = nil
	s.resetLocked()
	s.mu.Unlock()

	attempt.complete()
}

// invalidateLocked 开启新一代尝试并取消进行中的合成，
// 其结果将被丢弃
func (s *Scheduler) invalidateLocked() uint64 {
	s.attempt++
	if s.cancelSynthesis != nil {
		s.cancelSynthesis()
		s.cancelSynthesis = nil
	}
	return s.attempt
}

// resetLocked 取消两个定时器并静默活动音源，
// 不触发其完成回调
func (s *Scheduler) resetLocked() {
	if s.startTimer != nil {
		s.startTimer.timer.Stop()
		s.startTimer = nil
	}
	if s.stopTimer != nil {
		s.stopTimer.timer.Stop()
		s.stopTimer = nil
	}
	if s.active != nil {
		source := s.active.source
		s.active = nil
		source.OnEnded(nil)
		if err := source.Stop(); err != nil && !errors.Is(err, ErrSourceStopped) {
			log.Printf("[playback] stop source failed: %v", err)
		}
	}
}
