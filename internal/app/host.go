package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/ctrloem3/internal/config"
	"github.com/rbright/ctrloem3/internal/schedule"
	"github.com/rbright/ctrloem3/internal/session"
	"github.com/rbright/ctrloem3/internal/supervisor"
)

const (
	stopGrace      = 2 * time.Second
	stopDialBudget = time.Second
)

type hostOptions struct {
	Config     config.Config
	ConfigPath string
	Endpoint   string
	Console    *console
	Logger     *slog.Logger
	Clock      schedule.Clock
	Warn       func([]config.Warning)
}

// host owns one worker process at a time and the control session to it.
// All fields except mgr are touched only by the run loop.
type host struct {
	cfg        config.Config
	configPath string
	out        *console
	logger     *slog.Logger
	clock      schedule.Clock
	warn       func([]config.Warning)

	mgr *session.Manager
	sup *supervisor.Supervisor

	current     *supervisor.Process
	crashed     bool
	connectTask *schedule.Task
	spawnTask   *schedule.Task

	exits    chan *supervisor.Process
	spawnDue chan struct{}
}

func newHost(opts hostOptions) *host {
	warn := opts.Warn
	if warn == nil {
		warn = func([]config.Warning) {}
	}
	return &host{
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		out:        opts.Console,
		logger:     opts.Logger,
		clock:      opts.Clock,
		warn:       warn,
		mgr:        session.NewManager(opts.Endpoint, nil, opts.Logger),
		sup:        supervisor.New(opts.Logger),
		exits:      make(chan *supervisor.Process, 4),
		spawnDue:   make(chan struct{}, 1),
	}
}

// Notify adds a remediation hint to regex failures before printing. Late
// acknowledgements of a replaced connection are logged and not printed.
func (h *host) Notify(n session.Notification) {
	if h.mgr.Superseded(n) {
		h.logger.Debug("late notification from replaced connection", "kind", string(n.Kind), "generation", n.Generation)
		return
	}
	h.out.Notify(n)
	if n.Kind == session.KindConfigError {
		h.out.Printf("Edit worker.matches_window_title in %s, then send SIGHUP to restart.", h.configPath)
	}
}

func (h *host) run(ctx context.Context, restart <-chan os.Signal) int {
	if err := h.spawn(ctx); err != nil {
		return 1
	}

	for {
		select {
		case <-ctx.Done():
			return h.shutdown()
		case <-restart:
			h.restart(ctx)
		case <-h.spawnDue:
			_ = h.spawn(ctx)
		case p := <-h.exits:
			h.reportExit(p)
		}
	}
}

func (h *host) spawn(ctx context.Context) error {
	h.out.Printf("Starting the CtrlOEM3 service.")
	p, err := h.sup.Start(h.cfg.Worker.Command.Argv, h.cfg.Worker.MatchesWindowTitle, h.out.Line)
	if err != nil {
		h.out.Printf("Failed to start a CtrlOEM3 instance: %v", err)
		h.crashed = true
		return err
	}
	h.current = p
	h.crashed = false

	go func() {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return
		}
		select {
		case h.exits <- p:
		case <-ctx.Done():
		}
	}()

	h.connectTask = schedule.After(h.clock, h.cfg.Worker.ConnectDelay(), func() {
		h.mgr.Connect(ctx, h)
	})
	return nil
}

// reportExit describes a finished worker. The session handle is left alone;
// its own close event reports the transport side.
func (h *host) reportExit(p *supervisor.Process) {
	status := p.Status()
	if p != h.current {
		h.out.Printf("A previous CtrlOEM3 instance %s.", status)
		h.logger.Info("previous worker exited", "pid", status.PID, "code", status.Code)
		return
	}

	h.current = nil
	h.out.Printf("Current CtrlOEM3 instance %s.", status)
	if status.Clean() {
		h.logger.Info("worker exited", "pid", status.PID)
		return
	}
	h.crashed = true
	h.logger.Error("worker crashed", "pid", status.PID, "code", status.Code)
	h.out.Printf("Send SIGHUP to restart the CtrlOEM3 service.")
}

// restart reloads configuration, asks the running worker to stop and spawns a
// fresh one after the restart delay. The next connect supersedes the old
// session handle.
func (h *host) restart(ctx context.Context) {
	h.out.Printf("Restarting the CtrlOEM3 service.")
	h.reloadConfig()

	h.connectTask.Cancel()
	h.spawnTask.Cancel()
	// A task that already fired may have left a token behind.
	select {
	case <-h.spawnDue:
	default:
	}

	if h.current != nil {
		stopCtx, cancel := context.WithTimeout(ctx, stopDialBudget)
		_ = h.mgr.NotifyStop(stopCtx, h)
		cancel()
	}
	h.current = nil

	h.spawnTask = schedule.After(h.clock, h.cfg.Worker.RestartDelay(), func() {
		select {
		case h.spawnDue <- struct{}{}:
		default:
		}
	})
}

func (h *host) reloadConfig() {
	loaded, err := config.Load(h.configPath)
	if err != nil {
		h.out.Printf("Keeping the previous configuration: %v", err)
		h.logger.Error("reload config failed", "error", err.Error())
		return
	}
	h.warn(loaded.Warnings)
	if loaded.Config.Endpoint != h.cfg.Endpoint {
		h.logger.Warn("endpoint change ignored until the next start",
			"current", h.mgr.Endpoint(),
			"configured", loaded.Config.Endpoint,
		)
	}
	loaded.Config.Endpoint = h.cfg.Endpoint
	h.cfg = loaded.Config
	h.logger.Info("config reloaded", "config", loaded.Path)
}

// shutdown disconnects, asks the worker to stop and kills it if it lingers.
func (h *host) shutdown() int {
	h.connectTask.Cancel()
	h.spawnTask.Cancel()
	h.mgr.Disconnect()

	if h.current == nil {
		if h.crashed {
			return 1
		}
		return 0
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopDialBudget)
	_ = h.mgr.NotifyStop(stopCtx, h)
	cancel()

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()
	select {
	case <-h.current.Done():
	case <-timer.C:
		h.logger.Warn("worker ignored stop; killing", "pid", h.current.PID)
		if err := h.current.Kill(); err != nil {
			h.logger.Error("kill worker failed", "pid", h.current.PID, "error", err.Error())
		}
		<-h.current.Done()
	}

	status := h.current.Status()
	h.out.Printf("Current CtrlOEM3 instance %s.", status)
	if status.Clean() {
		return 0
	}
	return 1
}
