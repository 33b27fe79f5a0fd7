package playback

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestWAVSinkRecordsFullPlayback(t *testing.T) {
	clock := newManualClock()
	sink := NewWAVSink(clock)
	s := newTestScheduler(staticGenerator(pcmPayload(24000)), sink, clock)

	attempt := s.PlaySpeech("one second", nil)
	waitForState(t, s, StatePendingStart)

	clock.Advance(DefaultStartDelay)
	clock.Advance(time.Second)

	if !attempt.Completed() {
		t.Fatal("natural end did not complete the attempt")
	}
	if got := sink.Duration(); got != time.Second {
		t.Fatalf("rendered %v, want 1s", got)
	}

	var out bytes.Buffer
	if _, err := sink.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo err: %v", err)
	}
	if got, want := out.Len(), 44+24000*2; got != want {
		t.Fatalf("wav size = %d, want %d", got, want)
	}
}

func TestWAVSinkTruncatesStoppedSource(t *testing.T) {
	clock := newManualClock()
	sink := NewWAVSink(clock)
	s := newTestScheduler(staticGenerator(pcmPayload(24000*10)), sink, clock)

	ended := &counter{}
	s.PlaySpeech("ten seconds", ended.Inc)
	waitForState(t, s, StatePendingStart)
	clock.Advance(DefaultStartDelay)
	clock.Advance(time.Second)

	stopped := &counter{}
	s.StopSpeech(stopped.Inc)
	clock.Advance(DefaultStopDelay)

	if stopped.Value() != 1 || ended.Value() != 0 {
		t.Fatalf("stopped=%d ended=%d", stopped.Value(), ended.Value())
	}
	if got, want := sink.Duration(), time.Second+DefaultStopDelay; got != want {
		t.Fatalf("rendered %v, want %v", got, want)
	}

	clock.Advance(time.Minute)
	if got := len(sink.Segments()); got != 1 {
		t.Fatalf("segments = %d, want 1", got)
	}
}

func TestWAVSinkSuspendResume(t *testing.T) {
	sink := NewWAVSink(newManualClock())
	sink.Suspend()
	if !sink.Suspended() {
		t.Fatal("expected sink to be suspended")
	}
	if err := sink.Resume(context.Background()); err != nil {
		t.Fatalf("Resume err: %v", err)
	}
	if sink.Suspended() {
		t.Fatal("expected sink to be running")
	}

	var out bytes.Buffer
	if _, err := sink.WriteTo(&out); err == nil {
		t.Fatal("expected error when nothing was rendered")
	}
}
