package conversation

import (
	"context"
	"encoding/base64"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/model/persona"
	"github.com/zhouzirui/codementor/backend/internal/model/speech"
	"github.com/zhouzirui/codementor/backend/internal/service/ai"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
)

type step struct {
	text string
	err  error
}

type scriptedClient struct {
	mu      sync.Mutex
	prompts []string
	session *scriptedSession
	openErr error
}

func (c *scriptedClient) CreateSession(ctx context.Context, systemPrompt string) (ai.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, systemPrompt)
	if c.session == nil {
		c.session = &scriptedSession{openErr: c.openErr}
	}
	return c.session, nil
}

// scriptedSession hands out one stream per message; tests feed it steps.
type scriptedSession struct {
	openErr error
	streams chan chan step
	sent    []string
	mu      sync.Mutex
}

func (s *scriptedSession) SendMessageStream(ctx context.Context, text string) (ai.Stream, error) {
	s.mu.Lock()
	s.sent = append(s.sent, text)
	s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	ch := make(chan step)
	if s.streams != nil {
		s.streams <- ch
	}
	return &scriptedStream{steps: ch}, nil
}

type scriptedStream struct {
	steps chan step
}

func (s *scriptedStream) Recv() (ai.Chunk, error) {
	st, ok := <-s.steps
	if !ok {
		return ai.Chunk{}, io.EOF
	}
	if st.err != nil {
		return ai.Chunk{}, st.err
	}
	return ai.Chunk{Text: st.text}, nil
}

func (s *scriptedStream) Close() {}

func testPersona() persona.Persona {
	return persona.Seed()[0]
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// manualClock drives scheduler timers from the test goroutine.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Time
	fn       func()
	done     bool
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) playback.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.done && !t.deadline.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
		next := due[0]
		next.done = true
		c.now = next.deadline
		c.mu.Unlock()

		next.fn()
	}
}

// textGenerator returns one second of audio whose length encodes the text,
// so tests can tell sources apart.
type textGenerator struct{}

func (textGenerator) Generate(ctx context.Context, text string) (*speech.Synthesis, error) {
	frames := audio.DefaultSampleRate + len(text)
	return &speech.Synthesis{Audio: base64.StdEncoding.EncodeToString(make([]byte, frames*2))}, nil
}
