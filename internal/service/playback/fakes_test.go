package playback

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
)

// manualClock fires timers only when Advance moves time past their deadline.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, firing due timers in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.deadline.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].deadline.Equal(due[j].deadline) {
				return due[i].seq < due[j].seq
			}
			return due[i].deadline.Before(due[j].deadline)
		})
		next := due[0]
		next.fired = true
		c.now = next.deadline
		c.mu.Unlock()

		next.fn()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeSink struct {
	mu        sync.Mutex
	suspended bool
	resumed   int
	sources   []*fakeSource
	active    int
	maxActive int
}

func (s *fakeSink) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *fakeSink) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	s.resumed++
	return nil
}

func (s *fakeSink) CreateSource(buf *audio.Buffer) Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := &fakeSource{sink: s, buf: buf}
	s.sources = append(s.sources, src)
	return src
}

func (s *fakeSink) Sources() []*fakeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeSource(nil), s.sources...)
}

func (s *fakeSink) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *fakeSink) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type fakeSource struct {
	sink *fakeSink
	buf  *audio.Buffer

	mu        sync.Mutex
	connected bool
	started   bool
	stopped   bool
	onEnded   func()
}

func (src *fakeSource) Connect() error {
	src.mu.Lock()
	src.connected = true
	src.mu.Unlock()
	return nil
}

func (src *fakeSource) OnEnded(fn func()) {
	src.mu.Lock()
	src.onEnded = fn
	src.mu.Unlock()
}

func (src *fakeSource) Start() error {
	src.mu.Lock()
	src.started = true
	src.mu.Unlock()

	src.sink.mu.Lock()
	src.sink.active++
	if src.sink.active > src.sink.maxActive {
		src.sink.maxActive = src.sink.active
	}
	src.sink.mu.Unlock()
	return nil
}

func (src *fakeSource) Stop() error {
	src.mu.Lock()
	if src.stopped {
		src.mu.Unlock()
		return ErrSourceStopped
	}
	src.stopped = true
	src.mu.Unlock()

	src.sink.mu.Lock()
	src.sink.active--
	src.sink.mu.Unlock()
	return nil
}

// End simulates the buffer playing to completion.
func (src *fakeSource) End() {
	src.mu.Lock()
	if src.stopped || !src.started {
		src.mu.Unlock()
		return
	}
	src.stopped = true
	fn := src.onEnded
	src.mu.Unlock()

	src.sink.mu.Lock()
	src.sink.active--
	src.sink.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (src *fakeSource) State() (connected, started, stopped bool) {
	src.mu.Lock()
	defer src.mu.Unlock()
	return src.connected, src.started, src.stopped
}

type generatorFunc func(ctx context.Context, text string) (*speech.Synthesis, error)

func (f generatorFunc) Generate(ctx context.Context, text string) (*speech.Synthesis, error) {
	return f(ctx, text)
}

// pcmPayload returns base64 PCM16 of n mono frames.
func pcmPayload(n int) string {
	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(i%100)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func staticGenerator(payload string) Generator {
	return generatorFunc(func(ctx context.Context, text string) (*speech.Synthesis, error) {
		return &speech.Synthesis{Audio: payload}, nil
	})
}

// gatedGenerator blocks each call until its text is released.
type gatedGenerator struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls []string
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{gates: make(map[string]chan struct{})}
}

func (g *gatedGenerator) gate(text string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[text]
	if !ok {
		ch = make(chan struct{})
		g.gates[text] = ch
	}
	return ch
}

func (g *gatedGenerator) Release(text string) {
	close(g.gate(text))
}

func (g *gatedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *gatedGenerator) Generate(ctx context.Context, text string) (*speech.Synthesis, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	g.mu.Unlock()

	<-g.gate(text)
	return &speech.Synthesis{Audio: pcmPayload(2400)}, nil
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	waitFor(t, "scheduler state "+string(want), func() bool { return s.State() == want })
}

func newTestScheduler(gen Generator, sink Sink, clock Clock) *Scheduler {
	return NewScheduler(gen, sink, &Options{
		StartDelay: DefaultStartDelay,
		StopDelay:  DefaultStopDelay,
		Clock:      clock,
	})
}
