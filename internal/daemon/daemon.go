// Package daemon wires every chorusd component together: the runtime
// directory, the tmux pane, the input channels, readiness/activity
// detection, the injection controller, the hook control server, the
// output broadcaster, the lifecycle supervisor, and the audit log.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adamavenir/chorus/internal/activity"
	"github.com/adamavenir/chorus/internal/broadcast"
	"github.com/adamavenir/chorus/internal/chanwatch"
	"github.com/adamavenir/chorus/internal/config"
	"github.com/adamavenir/chorus/internal/eventlog"
	"github.com/adamavenir/chorus/internal/hookinstall"
	"github.com/adamavenir/chorus/internal/hookserver"
	"github.com/adamavenir/chorus/internal/inbox"
	"github.com/adamavenir/chorus/internal/inject"
	"github.com/adamavenir/chorus/internal/message"
	"github.com/adamavenir/chorus/internal/notify"
	"github.com/adamavenir/chorus/internal/panectl"
	"github.com/adamavenir/chorus/internal/queue"
	"github.com/adamavenir/chorus/internal/readiness"
	"github.com/adamavenir/chorus/internal/runtime"
	"github.com/adamavenir/chorus/internal/supervisor"
	"github.com/adamavenir/chorus/internal/turnlog"
)

// Daemon orchestrates one project's chorusd session.
type Daemon struct {
	cfg    *config.Config
	paths  runtime.Paths
	log    *slog.Logger
	events eventlog.Logger

	pane       *panectl.Session
	queue      *queue.Queue
	inboxMgr   *inbox.Manager
	watcher    *chanwatch.Watcher
	detector   *readiness.Detector
	monitor    *activity.Monitor
	injector   *inject.Controller
	supervisor *supervisor.Supervisor
	turns      *turnlog.Logger
	hooks      *hookserver.Server
	out        *broadcast.Broadcaster

	mu               sync.Mutex
	permissionActive bool
	currentSessionID string
}

// New constructs a Daemon for the given project configuration. Call
// Run to start it.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	paths := runtime.New(cfg.SessionRuntimeDir())
	if err := paths.EnsureDir(); err != nil {
		return nil, fmt.Errorf("preparing runtime directory: %w", err)
	}

	turns, err := turnlog.Open(paths.EventDB(), paths.EventLog(), cfg.ProjectName, log)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		paths:  paths,
		log:    log,
		events: eventlog.New(log),
		pane:   panectl.New(cfg.TmuxSession()),
		queue:  queue.New(),
		turns:  turns,
	}
	return d, nil
}

// Run starts every component and blocks until ctx is cancelled, then
// shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.installHooks(); err != nil {
		d.log.Error("hook installation failed, continuing without hooks", "error", err)
	}

	if err := d.setupPane(ctx); err != nil {
		return fmt.Errorf("setting up tmux pane: %w", err)
	}

	d.detector = readiness.New(readiness.Config{
		StdoutLogPath:  d.paths.StdoutLog(),
		SilenceTimeout: d.cfg.SilenceTimeout(),
	}, d.pane, d.log)
	d.detector.OnTransition = d.onReadinessTransition

	d.monitor = activity.New(d.pane)

	d.injector = inject.New(d.pane, d.queue, readinessAdapter{d.detector}, d.monitor, d.cfg.IdleThreshold(), injectSink{d}, d.log)

	d.supervisor = supervisor.New(d.pane, supervisor.Config{
		AgentCommand:     d.buildLaunchCommand(),
		AgentProcessName: d.cfg.AgentProcessName,
		BackoffInitial:   d.cfg.BackoffInitial(),
		BackoffCap:       d.cfg.BackoffCap(),
	}, d.log)
	d.supervisor.OnCrash = func(pid int) {
		d.events.ProcessCrash(pid)
	}
	d.supervisor.OnRestart = func(int) {
		d.events.ProcessRestart(d.supervisor.RestartCount(), d.supervisor.LastBackoff().Seconds())
		if err := d.pane.MountStdoutTap(d.paths.StdoutLog()); err != nil {
			d.log.Error("re-mounting stdout tap after restart", "error", err)
		}
	}

	d.out = broadcast.New(d.paths.OutputSock(), d.log)
	d.hooks = hookserver.New(d.paths.ControlSock(), hookserver.Handlers{
		OnTurn:  d.onTurn,
		OnEvent: d.onEvent,
	}, d.log)

	d.inboxMgr = inbox.NewManager(ctx, inboxSink{d}, d.log)
	d.watcher = chanwatch.New(d.paths.Root, d.log)
	d.watcher.OnAdd = func(path, channel string) {
		_ = d.inboxMgr.Register(path, channel)
		d.events.ChannelRegister(path)
	}
	d.watcher.OnRemove = func(path string) {
		d.inboxMgr.Deregister(path)
		d.events.ChannelDeregister(path)
	}

	if err := runtime.MakeFIFO(d.paths.DefaultInput()); err != nil {
		return fmt.Errorf("creating default input channel: %w", err)
	}
	if err := d.watcher.Scan(); err != nil {
		return fmt.Errorf("scanning runtime directory: %w", err)
	}
	if err := d.watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting directory watcher: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); d.out.Serve(ctx) }()
	go func() { defer wg.Done(); d.hooks.Serve(ctx) }()
	go func() { defer wg.Done(); d.supervisor.Run(ctx) }()
	go func() { defer wg.Done(); d.runDetectorAndMonitor(ctx) }()

	d.log.Info("daemon started", "session", d.cfg.TmuxSession())

	<-ctx.Done()
	d.log.Info("daemon stopping")

	d.watcher.Stop()
	d.inboxMgr.Shutdown()
	wg.Wait()

	return d.turns.Close()
}

func (d *Daemon) installHooks() error {
	settingsPath, err := hookinstall.DefaultSettingsPath()
	if err != nil {
		return err
	}
	hookCmd := fmt.Sprintf("chorusd hook --project %s", d.cfg.ProjectRoot)
	return hookinstall.Install(settingsPath, hookCmd)
}

func (d *Daemon) setupPane(ctx context.Context) error {
	if !d.pane.HasSession() {
		launchCmd := d.buildLaunchCommand()
		if err := d.pane.EnsureSession([]string{"sh", "-c", launchCmd}); err != nil {
			return err
		}
	}
	time.Sleep(500 * time.Millisecond)
	return d.pane.MountStdoutTap(d.paths.StdoutLog())
}

func (d *Daemon) buildLaunchCommand() string {
	prefix := fmt.Sprintf("CHORUS_CONTROL_SOCK=%s", d.paths.ControlSock())
	if d.cfg.AgentProxy != "" {
		prefix = fmt.Sprintf("HTTP_PROXY=%s HTTPS_PROXY=%s %s", d.cfg.AgentProxy, d.cfg.AgentProxy, prefix)
	}
	return prefix + " " + d.cfg.AgentCommand
}

func (d *Daemon) runDetectorAndMonitor(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); d.detector.Run(stop) }()
	go func() { defer wg.Done(); d.monitor.Run(stop, 500*time.Millisecond) }()
	wg.Wait()
}

func (d *Daemon) onReadinessTransition(from, to readiness.State, method string) {
	d.log.Info("readiness transition", "from", from, "to", to, "method", method)

	d.mu.Lock()
	if to == readiness.StateConfirm {
		d.permissionActive = true
	} else if from == readiness.StateConfirm {
		d.permissionActive = false
	}
	d.mu.Unlock()

	if to == readiness.StateConfirm {
		if text, err := d.pane.CapturePane(); err == nil {
			if err := notify.ConfirmPrompt(d.cfg.ProjectName, text); err != nil {
				d.log.Warn("desktop notification failed", "error", err)
			}
		}
	}

	if to == readiness.StateReady {
		d.events.ReadyDetected(method)
		d.injector.Evaluate(context.Background())
	}
}

func (d *Daemon) onTurn(t hookserver.Turn) {
	d.mu.Lock()
	d.currentSessionID = t.Session
	wasPermission := d.permissionActive
	d.permissionActive = false
	d.mu.Unlock()

	if wasPermission {
		d.log.Info("permission prompt resolved via stop hook")
	}

	turnJSON, err := json.Marshal(t.Turn)
	if err != nil {
		d.log.Error("marshaling turn for audit log", "error", err)
	} else if err := d.turns.RecordTurn(turnJSON, t.Ts); err != nil {
		d.log.Error("recording turn", "error", err)
	}

	if n, err := d.out.Broadcast(map[string]any{"ts": t.Ts, "session": t.Session, "turn": t.Turn}); err != nil {
		d.log.Error("broadcasting turn", "error", err)
	} else {
		d.events.BroadcastSent(n)
	}

	d.detector.Reset()
	d.injector.Evaluate(context.Background())
}

func (d *Daemon) onEvent(e hookserver.Event) {
	d.log.Info("hook event received", "event", e.Name, "session", e.Session)

	switch e.Name {
	case "SessionStart":
		d.mu.Lock()
		d.currentSessionID = e.Session
		d.mu.Unlock()
	case "PermissionRequest":
		d.mu.Lock()
		d.permissionActive = true
		d.mu.Unlock()
	}

	if err := d.turns.RecordEvent(e.Name, e.Data, 0); err != nil {
		d.log.Error("recording event", "error", err)
	}
}

// injectSink adapts the daemon to inject.EventSink.
type injectSink struct{ d *Daemon }

func (s injectSink) Suppressed(reason string) {
	s.d.log.Debug("injection suppressed", "reason", reason)
	s.d.events.Suppressed(reason)
}

func (s injectSink) Injected(count int) {
	s.d.log.Info("injected queued messages", "count", count)
	s.d.events.MessageInjected(count)
}

// inboxSink adapts the daemon to inbox.Sink.
type inboxSink struct{ d *Daemon }

func (s inboxSink) Accept(m message.Message) {
	s.d.events.MessageReceived(m.Channel, len(m.Content))
	if m.Intent != "" {
		s.d.events.ToolCalled(m.Channel, len(m.Content))
	}
	s.d.queue.Enqueue(m)
	s.d.injector.Evaluate(context.Background())
}

func (s inboxSink) ParseError(channel string, err error) {
	s.d.log.Warn("dropping unparseable input line", "channel", channel, "error", err)
}

// readinessAdapter adapts *readiness.Detector to inject.Readiness.
type readinessAdapter struct{ d *readiness.Detector }

func (r readinessAdapter) State() readiness.State { return r.d.State() }
