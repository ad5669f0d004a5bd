// Package eventlog implements the Logger: one structured record per
// significant occurrence, with a stable event schema. Every record is
// an slog.Logger call carrying a constant "event" field plus whatever
// per-event attributes that event defines, so every significant
// occurrence is greppable by event name regardless of free-text message
// wording elsewhere in the daemon.
package eventlog

import "log/slog"

// Event is one of the named occurrences the daemon reports.
type Event string

const (
	ChannelRegister   Event = "channel_register"
	ChannelDeregister Event = "channel_deregister"
	MessageReceived   Event = "message_received"
	MessageInjected   Event = "message_injected"
	ReadyDetected     Event = "ready_detected"
	BroadcastSent     Event = "broadcast_sent"
	ToolCalled        Event = "tool_called"
	ProcessCrash      Event = "process_crash"
	ProcessRestart    Event = "process_restart"
	Suppressed        Event = "suppressed"
)

// Logger emits Events over an underlying *slog.Logger.
type Logger struct {
	log *slog.Logger
}

// New wraps log as an event Logger.
func New(log *slog.Logger) Logger {
	return Logger{log: log}
}

func (l Logger) emit(e Event, args ...any) {
	l.log.Info(string(e), append([]any{"event", string(e)}, args...)...)
}

// ChannelRegister records a Directory Watcher artifact-created event.
func (l Logger) ChannelRegister(path string) {
	l.emit(ChannelRegister, "path", path)
}

// ChannelDeregister records a Directory Watcher artifact-removed event.
func (l Logger) ChannelDeregister(path string) {
	l.emit(ChannelDeregister, "path", path)
}

// MessageReceived records one Message parsed off an input channel.
func (l Logger) MessageReceived(channel string, contentLen int) {
	l.emit(MessageReceived, "channel", channel, "content_len", contentLen)
}

// MessageInjected records one drained batch delivered to the pane.
func (l Logger) MessageInjected(messageCount int) {
	l.emit(MessageInjected, "message_count", messageCount)
}

// ReadyDetected records a transition into the ready Readiness State,
// method is one of "silence", "snapshot", or "skipped".
func (l Logger) ReadyDetected(method string) {
	l.emit(ReadyDetected, "method", method)
}

// BroadcastSent records one Turn fanned out to subscribers.
func (l Logger) BroadcastSent(subscriberCount int) {
	l.emit(BroadcastSent, "subscriber_count", subscriberCount)
}

// ToolCalled records a Message whose envelope carried a tool intent.
func (l Logger) ToolCalled(channel string, messageLen int) {
	l.emit(ToolCalled, "channel", channel, "message_len", messageLen)
}

// ProcessCrash records the Lifecycle Supervisor detecting the agent
// process is no longer running. pid is the best-effort last-known pid,
// 0 if it could not be recovered.
func (l Logger) ProcessCrash(pid int) {
	l.emit(ProcessCrash, "pid", pid)
}

// ProcessRestart records the Lifecycle Supervisor relaunching the agent.
func (l Logger) ProcessRestart(restartCount int, backoffSeconds float64) {
	l.emit(ProcessRestart, "restart_count", restartCount, "backoff_seconds", backoffSeconds)
}

// Suppressed records the Injection Controller declining to inject
// because the Injection Window is closed, whether or not the queue holds
// anything; reason is one of "confirm", "busy", or "terminal_active".
func (l Logger) Suppressed(reason string) {
	l.emit(Suppressed, "reason", reason)
}
