// Package supervisor implements the Lifecycle Supervisor: it monitors
// the agent process running inside the tmux pane and restarts it with
// exponential backoff on crash.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Pane is the subset of the Terminal Session Controller the supervisor
// needs to detect and recover from a crash.
type Pane interface {
	PanePID() (int, error)
	PaneDead() (bool, error)
	CapturePane() (string, error)
	SendText(ctx context.Context, text string) error
	SendEnter(ctx context.Context) error
}

// Config controls polling cadence and restart backoff.
type Config struct {
	// AgentCommand is the full shell command line used to relaunch the
	// agent, e.g. "claude --dangerously-skip-permissions --continue".
	AgentCommand string
	// AgentProcessName is matched against pgrep's child-process listing
	// under the pane's shell pid, e.g. "claude".
	AgentProcessName string

	PollInterval   time.Duration
	StartupGrace   time.Duration
	BackoffInitial time.Duration
	BackoffCap     time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.StartupGrace == 0 {
		c.StartupGrace = 10 * time.Second
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 2 * time.Minute
	}
}

// Supervisor monitors a Pane and relaunches the agent process on crash.
// The restart counter grows monotonically and is never reset: a daemon
// that has run stably for days and then starts crashing again backs off
// at the capped interval immediately, rather than re-learning the
// backoff curve from scratch. This favors restart-storm avoidance over
// fast recovery for a long-lived daemon.
type Supervisor struct {
	pane Pane
	cfg  Config
	log  *slog.Logger

	// OnCrash is called once per detected crash, before the backoff sleep,
	// with the agent's best-effort last-known pid (0 if unrecoverable).
	OnCrash func(pid int)
	// OnRestart is called once per completed restart, after the agent
	// command has been relaunched in the pane.
	OnRestart func(count int)

	restartCount int
	lastBackoff  time.Duration
}

// New constructs a Supervisor. cfg's zero-valued fields take their
// defaults (2s poll, 10s startup grace, 1s initial backoff, 2m cap).
func New(pane Pane, cfg Config, log *slog.Logger) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{pane: pane, cfg: cfg, log: log}
}

// RestartCount reports how many restarts have been performed so far.
func (s *Supervisor) RestartCount() int {
	return s.restartCount
}

// LastBackoff reports the backoff interval waited before the most
// recent restart, zero before the first restart.
func (s *Supervisor) LastBackoff() time.Duration {
	return s.lastBackoff
}

// Run polls the pane until ctx is cancelled, restarting the agent
// process whenever it is no longer detected as running. It waits
// StartupGrace before the first check, since the agent takes a few
// seconds to come up after the pane is created.
func (s *Supervisor) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.StartupGrace):
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isRunning() {
				continue
			}
			s.log.Warn("agent process not detected, restarting", "restart_count", s.restartCount)
			if s.OnCrash != nil {
				pid, _ := s.pane.PanePID()
				s.OnCrash(pid)
			}
			s.restart(ctx)
		}
	}
}

// isRunning reports whether the agent process appears to still be
// alive in the pane. It prefers a direct pid check (pgrep for the
// named process under the pane's shell pid) and falls back to reading
// the last non-blank line of the captured pane for a shell-prompt
// signature when the pid check is inconclusive.
func (s *Supervisor) isRunning() bool {
	if dead, err := s.pane.PaneDead(); err == nil && dead {
		return false
	}
	if pid, err := s.agentPID(); err == nil && pid > 0 {
		return true
	}
	return s.capturePaneLooksAlive()
}

func (s *Supervisor) agentPID() (int, error) {
	panePID, err := s.pane.PanePID()
	if err != nil {
		return 0, err
	}
	if s.cfg.AgentProcessName == "" {
		return 0, fmt.Errorf("no agent process name configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(panePID), s.cfg.AgentProcessName).Output()
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("no matching child process")
	}
	return strconv.Atoi(fields[0])
}

// capturePaneLooksAlive is the fallback crash check: it reads the last
// non-blank line of the pane and distinguishes an agent prompt from a
// bare shell prompt. Fails safe toward "not running" (triggers a
// restart attempt, which is protected by exponential backoff) when the
// pane can't be captured at all.
func (s *Supervisor) capturePaneLooksAlive() bool {
	text, err := s.pane.CapturePane()
	if err != nil {
		s.log.Warn("capture-pane crash detection failed", "error", err)
		return false
	}
	lines := strings.Split(text, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" {
			last = trimmed
			break
		}
	}
	if last == "" {
		return false
	}
	if strings.ContainsRune(last, '❯') {
		return true
	}
	if strings.HasSuffix(last, "$") || strings.HasSuffix(last, "%") || strings.HasSuffix(last, "#") {
		return false
	}
	return true
}

// restart sleeps the current backoff interval, advances the restart
// counter, and relaunches the agent command in the pane.
func (s *Supervisor) restart(ctx context.Context) {
	backoff := s.nextBackoff()
	s.lastBackoff = backoff
	s.restartCount++

	s.log.Info("restarting agent", "restart_count", s.restartCount, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	if err := s.pane.SendText(ctx, s.cfg.AgentCommand); err != nil {
		s.log.Error("failed to send restart command", "error", err)
		return
	}
	if err := s.pane.SendEnter(ctx); err != nil {
		s.log.Error("failed to submit restart command", "error", err)
		return
	}

	if s.OnRestart != nil {
		s.OnRestart(s.restartCount)
	}
}

func (s *Supervisor) nextBackoff() time.Duration {
	backoff := s.cfg.BackoffInitial
	for i := 0; i < s.restartCount; i++ {
		backoff *= 2
		if backoff >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if backoff > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return backoff
}
