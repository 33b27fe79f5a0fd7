package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/zhouzirui/codementor/backend/internal/audio"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
)

type commandLog struct {
	mu    sync.Mutex
	types []string
}

func (l *commandLog) send(msgType string, _ any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, msgType)
	return nil
}

func (l *commandLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func testBuffer(t *testing.T) *audio.Buffer {
	t.Helper()
	buf, err := audio.DecodePCM16(make([]byte, 480), audio.DefaultSampleRate, audio.DefaultChannels)
	if err != nil {
		t.Fatalf("DecodePCM16 err: %v", err)
	}
	return buf
}

func TestSocketSinkResume(t *testing.T) {
	log := &commandLog{}
	sink := newSocketSink(log.send)

	if !sink.Suspended() {
		t.Fatal("a fresh client output starts suspended")
	}
	if err := sink.Resume(context.Background()); err != nil {
		t.Fatalf("Resume err: %v", err)
	}
	if sink.Suspended() {
		t.Fatal("expected output to be running after resume")
	}
	sink.markSuspended()
	if !sink.Suspended() {
		t.Fatal("expected client report to suspend output")
	}

	if got := log.all(); len(got) != 1 || got[0] != "audio.resume" {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestSocketSourceEndedOnce(t *testing.T) {
	log := &commandLog{}
	sink := newSocketSink(log.send)
	src := sink.CreateSource(testBuffer(t)).(*socketSource)

	ended := 0
	src.OnEnded(func() { ended++ })
	if err := src.Connect(); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	sink.ended(src.id)
	sink.ended(src.id)
	if ended != 1 {
		t.Fatalf("expected one ended callback, got %d", ended)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop after natural end err: %v", err)
	}
}

func TestSocketSourceStopTwice(t *testing.T) {
	log := &commandLog{}
	sink := newSocketSink(log.send)
	src := sink.CreateSource(testBuffer(t))

	ended := false
	src.OnEnded(func() { ended = true })
	if err := src.Start(); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("first Stop err: %v", err)
	}
	if err := src.Stop(); !errors.Is(err, playback.ErrSourceStopped) {
		t.Fatalf("second Stop err = %v, want ErrSourceStopped", err)
	}

	sink.ended(src.(*socketSource).id)
	if ended {
		t.Fatal("a stopped source must not report ended")
	}
	if got := log.all(); len(got) != 2 || got[0] != "audio.start" || got[1] != "audio.stop" {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestSocketSinkClosedRejectsSources(t *testing.T) {
	sink := newSocketSink((&commandLog{}).send)
	sink.close()

	if err := sink.CreateSource(testBuffer(t)).Connect(); !errors.Is(err, errSinkClosed) {
		t.Fatalf("Connect err = %v, want errSinkClosed", err)
	}
}
