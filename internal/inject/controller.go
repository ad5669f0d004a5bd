// Package inject implements the Injection Controller: the single writer
// to the pane's input path, deciding when the Injection Window is open
// and formatting/draining the Message Queue when it is.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/chorus/internal/message"
	"github.com/adamavenir/chorus/internal/queue"
	"github.com/adamavenir/chorus/internal/readiness"
)

// Pane is the subset of the Terminal Session Controller the Injection
// Controller needs.
type Pane interface {
	SendText(ctx context.Context, text string) error
	SendEnter(ctx context.Context) error
}

// IdleChecker reports how long it has been since the last observed
// human keystroke.
type IdleChecker interface {
	IdleFor(now time.Time) time.Duration
}

// Readiness reports the current Readiness State.
type Readiness interface {
	State() readiness.State
}

// EventSink receives the Logger-facing events this controller emits.
type EventSink interface {
	Suppressed(reason string)
	Injected(messageCount int)
}

// Controller drains the Message Queue and drives the pane when the
// Injection Window is open. It is triggered on two edges: a Turn
// arriving (the caller calls Evaluate) or a readiness transition to
// ready (also Evaluate).
type Controller struct {
	pane          Pane
	queue         *queue.Queue
	readiness     Readiness
	idle          IdleChecker
	idleThreshold time.Duration
	sink          EventSink
	log           *slog.Logger

	// injectMu serializes drain+inject sequences: no new drain may begin
	// until the prior Enter has been issued. This is distinct from the
	// Message Queue's own internal mutex, which Drain releases before
	// SendText/SendEnter ever run.
	injectMu sync.Mutex
}

// New constructs a Controller.
func New(pane Pane, q *queue.Queue, r Readiness, idle IdleChecker, idleThreshold time.Duration, sink EventSink, log *slog.Logger) *Controller {
	return &Controller{
		pane:          pane,
		queue:         q,
		readiness:     r,
		idle:          idle,
		idleThreshold: idleThreshold,
		sink:          sink,
		log:           log,
	}
}

// Evaluate checks the Injection Window and, if open, drains and injects
// the queue. If closed, it emits a suppressed event carrying the reason
// and leaves the queue untouched for the next evaluation.
func (c *Controller) Evaluate(ctx context.Context) {
	c.injectMu.Lock()
	defer c.injectMu.Unlock()

	state := c.readiness.State()
	if state == readiness.StateConfirm {
		c.sink.Suppressed("confirm")
		return
	}
	if state != readiness.StateReady {
		c.sink.Suppressed("busy")
		return
	}
	if c.idle.IdleFor(time.Now()) < c.idleThreshold {
		c.sink.Suppressed("terminal_active")
		return
	}

	batch := c.queue.Drain()
	if len(batch) == 0 {
		return
	}

	text := FormatBatch(batch)
	if err := c.pane.SendText(ctx, text); err != nil {
		c.log.Error("injection: send-keys -l failed, requeuing batch", "error", err, "message_count", len(batch))
		c.queue.Requeue(batch)
		return
	}
	if err := c.pane.SendEnter(ctx); err != nil {
		c.log.Error("injection: send-keys Enter failed, requeuing batch", "error", err, "message_count", len(batch))
		c.queue.Requeue(batch)
		return
	}
	c.sink.Injected(len(batch))
}

// FormatBatch renders a drained batch into the injection string the
// agent receives: one line per Message, "[HH:MM channel] content", in
// arrival order, local time zone.
func FormatBatch(batch []message.Message) string {
	lines := make([]string, 0, len(batch))
	for _, m := range batch {
		ts := time.Unix(m.Ts, 0).Local().Format("15:04")
		lines = append(lines, fmt.Sprintf("[%s %s] %s", ts, m.Channel, m.Content))
	}
	return strings.Join(lines, "\n")
}
