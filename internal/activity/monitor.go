// Package activity implements the Terminal Activity Monitor: it
// observes human keystrokes in the pane and maintains
// last_human_keystroke_ts, the single input the Injection Controller
// consults to decide whether the terminal is "idle".
package activity

import (
	"sync"
	"time"
)

// ActivitySource is the tap the Monitor polls. panectl.Session
// satisfies this via ClientActivity, which tracks tmux client input —
// structurally distinct from the Injection Controller's send-keys path,
// since send-keys is never attributed to an attached client.
type ActivitySource interface {
	ClientActivity() (time.Time, error)
}

// Monitor tracks the most recent human keystroke timestamp. It is the
// single writer of that timestamp; every other component only reads it.
type Monitor struct {
	source ActivitySource

	mu   sync.RWMutex
	last time.Time
}

// New constructs a Monitor over source.
func New(source ActivitySource) *Monitor {
	return &Monitor{source: source}
}

// Poll re-queries the activity source and advances the last-keystroke
// timestamp if it reports something newer. Safe to call on a timer from
// a single goroutine; reads of LastActivity are safe from any goroutine.
func (m *Monitor) Poll() error {
	ts, err := m.source.ClientActivity()
	if err != nil {
		return err
	}
	if ts.IsZero() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts.After(m.last) {
		m.last = ts
	}
	return nil
}

// LastActivity returns the most recent known human-keystroke timestamp,
// or the zero time if none has been observed yet.
func (m *Monitor) LastActivity() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// IdleFor reports how long it has been since the last observed human
// keystroke. Returns a very large duration if no activity has ever been
// observed, so an idle-threshold comparison against it is always
// satisfied.
func (m *Monitor) IdleFor(now time.Time) time.Duration {
	last := m.LastActivity()
	if last.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(last)
}

// Run polls on interval until stop is closed.
func (m *Monitor) Run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = m.Poll()
		}
	}
}
