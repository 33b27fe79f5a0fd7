package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/audio"
)

var errNothingRendered = errors.New("no audio was rendered")

// WAVSink 在 Clock 上虚拟播放音源并记录实际发声的部分。
// 提前停止的音源只贡献已播放的帧
type WAVSink struct {
	clock Clock

	mu        sync.Mutex
	suspended bool
	format    *audio.Buffer
	rendered  []*audio.Buffer
}

// NewWAVSink 返回由 clock 驱动、处于运行状态的 sink
func NewWAVSink(clock Clock) *WAVSink {
	if clock == nil {
		clock = SystemClock()
	}
	return &WAVSink{clock: clock}
}

// Suspend 挂起 sink 直到下一次 Resume
func (s *WAVSink) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
}

func (s *WAVSink) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *WAVSink) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	return nil
}

func (s *WAVSink) CreateSource(buf *audio.Buffer) Source {
	return &wavSource{sink: s, buf: buf}
}

// Segments 按播放顺序返回渲染片段
func (s *WAVSink) Segments() []*audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audio.Buffer(nil), s.rendered...)
}

// Duration 返回目前为止渲染的总发声时长
func (s *WAVSink) Duration() time.Duration {
	var total time.Duration
	for _, seg := range s.Segments() {
		total += seg.Duration()
	}
	return total
}

// WriteTo 将所有片段首尾相接写成一个 WAV 文件
func (s *WAVSink) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	format := s.format
	var pcm []byte
	for _, seg := range s.rendered {
		pcm = append(pcm, seg.PCM16()...)
	}
	s.mu.Unlock()

	if format == nil || len(pcm) == 0 {
		return 0, errNothingRendered
	}

	data, err := audio.EncodeWAV(pcm, format.Channels, format.SampleRate)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (s *WAVSink) record(buf *audio.Buffer) {
	if buf.Frames() == 0 {
		return
	}
	s.mu.Lock()
	if s.format == nil {
		s.format = buf
	}
	s.rendered = append(s.rendered, buf)
	s.mu.Unlock()
}

type wavSource struct {
	sink *WAVSink
	buf  *audio.Buffer

	mu        sync.Mutex
	connected bool
	started   bool
	stopped   bool
	startedAt time.Time
	timer     Timer
	onEnded   func()
}

func (src *wavSource) Connect() error {
	src.mu.Lock()
	src.connected = true
	src.mu.Unlock()
	return nil
}

func (src *wavSource) OnEnded(fn func()) {
	src.mu.Lock()
	src.onEnded = fn
	src.mu.Unlock()
}

func (src *wavSource) Start() error {
	src.mu.Lock()
	defer src.mu.Unlock()

	if !src.connected {
		return errors.New("audio source is not connected")
	}
	if src.started {
		return errors.New("audio source already started")
	}
	src.started = true
	src.startedAt = src.sink.clock.Now()
	src.timer = src.sink.clock.AfterFunc(src.buf.Duration(), src.finish)
	return nil
}

func (src *wavSource) Stop() error {
	src.mu.Lock()
	if src.stopped || !src.started {
		src.mu.Unlock()
		return ErrSourceStopped
	}
	src.stopped = true
	if src.timer != nil {
		src.timer.Stop()
	}
	elapsed := src.sink.clock.Now().Sub(src.startedAt)
	src.mu.Unlock()

	frames := int(elapsed * time.Duration(src.buf.SampleRate) / time.Second)
	src.sink.record(src.buf.Head(frames))
	return nil
}

func (src *wavSource) finish() {
	src.mu.Lock()
	if src.stopped {
		src.mu.Unlock()
		return
	}
	src.stopped = true
	fn := src.onEnded
	src.mu.Unlock()

	src.sink.record(src.buf)
	if fn != nil {
		fn()
	}
}
