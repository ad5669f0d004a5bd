package inject

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adamavenir/chorus/internal/message"
	"github.com/adamavenir/chorus/internal/queue"
	"github.com/adamavenir/chorus/internal/readiness"
)

type fakePane struct {
	sentText   []string
	enterCount int
	failText   bool
}

func (p *fakePane) SendText(ctx context.Context, text string) error {
	if p.failText {
		return context.DeadlineExceeded
	}
	p.sentText = append(p.sentText, text)
	return nil
}

func (p *fakePane) SendEnter(ctx context.Context) error {
	p.enterCount++
	return nil
}

type fakeReadiness struct{ state readiness.State }

func (f *fakeReadiness) State() readiness.State { return f.state }

type fakeIdle struct{ idleFor time.Duration }

func (f *fakeIdle) IdleFor(now time.Time) time.Duration { return f.idleFor }

type fakeSink struct {
	suppressed []string
	injected   []int
}

func (s *fakeSink) Suppressed(reason string) { s.suppressed = append(s.suppressed, reason) }
func (s *fakeSink) Injected(count int)       { s.injected = append(s.injected, count) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatBatch(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 5, 0, 0, time.Local).Unix()
	batch := []message.Message{
		{Channel: "a", Content: "hello", Ts: ts},
		{Channel: "b", Content: "world", Ts: ts},
	}
	got := FormatBatch(batch)
	want := "[09:05 a] hello\n[09:05 b] world"
	if got != want {
		t.Errorf("FormatBatch = %q, want %q", got, want)
	}
}

func TestEvaluateInjectsWhenWindowOpen(t *testing.T) {
	q := queue.New()
	q.Enqueue(message.Message{Channel: "a", Content: "hi", Ts: time.Now().Unix()})

	pane := &fakePane{}
	r := &fakeReadiness{state: readiness.StateReady}
	idle := &fakeIdle{idleFor: time.Hour}
	sink := &fakeSink{}

	c := New(pane, q, r, idle, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(pane.sentText) != 1 || pane.enterCount != 1 {
		t.Fatalf("expected one send+enter, got sendText=%v enter=%d", pane.sentText, pane.enterCount)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be drained, len=%d", q.Len())
	}
	if len(sink.injected) != 1 || sink.injected[0] != 1 {
		t.Fatalf("expected one injected event of count 1, got %v", sink.injected)
	}
}

func TestEvaluateSuppressedWhenBusy(t *testing.T) {
	q := queue.New()
	q.Enqueue(message.Message{Channel: "a", Content: "hi"})

	pane := &fakePane{}
	r := &fakeReadiness{state: readiness.StateBusy}
	idle := &fakeIdle{idleFor: time.Hour}
	sink := &fakeSink{}

	c := New(pane, q, r, idle, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(sink.suppressed) != 1 || sink.suppressed[0] != "busy" {
		t.Fatalf("expected suppressed busy, got %v", sink.suppressed)
	}
	if q.Len() != 1 {
		t.Fatalf("queue must not be drained on suppression, len=%d", q.Len())
	}
}

func TestEvaluateSuppressedWhenConfirm(t *testing.T) {
	q := queue.New()
	q.Enqueue(message.Message{Channel: "a", Content: "hi"})

	sink := &fakeSink{}
	c := New(&fakePane{}, q, &fakeReadiness{state: readiness.StateConfirm}, &fakeIdle{idleFor: time.Hour}, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(sink.suppressed) != 1 || sink.suppressed[0] != "confirm" {
		t.Fatalf("expected suppressed confirm, got %v", sink.suppressed)
	}
}

func TestEvaluateSuppressedWhenTerminalActive(t *testing.T) {
	q := queue.New()
	q.Enqueue(message.Message{Channel: "a", Content: "hi"})

	sink := &fakeSink{}
	c := New(&fakePane{}, q, &fakeReadiness{state: readiness.StateReady}, &fakeIdle{idleFor: time.Second}, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(sink.suppressed) != 1 || sink.suppressed[0] != "terminal_active" {
		t.Fatalf("expected suppressed terminal_active, got %v", sink.suppressed)
	}
	if q.Len() != 1 {
		t.Fatalf("queue must not be drained, len=%d", q.Len())
	}
}

func TestEvaluateRequeuesBatchOnSendTextFailure(t *testing.T) {
	q := queue.New()
	q.Enqueue(message.Message{Channel: "a", Content: "hi", Ts: time.Now().Unix()})

	pane := &fakePane{failText: true}
	sink := &fakeSink{}
	c := New(pane, q, &fakeReadiness{state: readiness.StateReady}, &fakeIdle{idleFor: time.Hour}, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(sink.injected) != 0 {
		t.Fatalf("should not report injected on failure, got %v", sink.injected)
	}
	if q.Len() != 1 {
		t.Fatalf("failed batch should be requeued, len=%d", q.Len())
	}
	if pane.enterCount != 0 {
		t.Fatalf("enter should not be sent when send-keys -l failed, got %d", pane.enterCount)
	}
}

func TestEvaluateNoOpWhenQueueEmpty(t *testing.T) {
	q := queue.New()
	pane := &fakePane{}
	sink := &fakeSink{}
	c := New(pane, q, &fakeReadiness{state: readiness.StateReady}, &fakeIdle{idleFor: time.Hour}, 30*time.Second, sink, testLogger())
	c.Evaluate(context.Background())

	if len(pane.sentText) != 0 {
		t.Fatalf("should not inject with an empty queue, got %v", pane.sentText)
	}
	if len(sink.suppressed) != 0 || len(sink.injected) != 0 {
		t.Fatalf("empty queue with an open window should emit neither suppressed nor injected events")
	}
}
