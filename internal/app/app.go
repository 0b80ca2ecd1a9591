package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rbright/ctrloem3/internal/cli"
	"github.com/rbright/ctrloem3/internal/config"
	"github.com/rbright/ctrloem3/internal/doctor"
	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/logging"
	"github.com/rbright/ctrloem3/internal/protocol"
	"github.com/rbright/ctrloem3/internal/schedule"
	"github.com/rbright/ctrloem3/internal/session"
	"github.com/rbright/ctrloem3/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Clock drives the connect and restart delays. Nil means wall time.
	Clock schedule.Clock
	// Restart delivers restart requests (SIGHUP) to a running start command.
	Restart <-chan os.Signal
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("ctrloem3"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("ctrloem3"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	if parsed.Endpoint != "" {
		cfgLoaded.Config.Endpoint = parsed.Endpoint
		if _, err := config.Validate(cfgLoaded.Config); err != nil {
			fmt.Fprintf(r.Stderr, "error: --endpoint: %v\n", err)
			return 2
		}
	}
	r.printWarnings(cfgLoaded.Warnings, logger)

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfgLoaded.Config)
	case cli.CommandStop:
		return r.commandStop(ctx, cfgLoaded.Config, logger)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) printWarnings(warnings []config.Warning, logger *slog.Logger) {
	for _, w := range warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
}

func (r Runner) clock() schedule.Clock {
	if r.Clock == nil {
		return schedule.RealClock{}
	}
	return r.Clock
}

// commandStatus asks the worker for its state once and prints it.
func (r Runner) commandStatus(ctx context.Context, cfg config.Config) int {
	endpoint, err := ipc.ResolveEndpoint(cfg.Endpoint)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	acks, err := ipc.Query(ctx, endpoint, protocol.CommandGetStatus, cfg.ProbeTimeout())
	if err != nil {
		if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
			fmt.Fprintln(r.Stdout, "stopped")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: query status: %v\n", err)
		return 1
	}

	fmt.Fprintln(r.Stdout, statusWord(acks))
	return 0
}

func statusWord(acks []protocol.Ack) string {
	if len(acks) == 0 {
		return "unknown"
	}
	switch acks[0] {
	case protocol.AckSayOK:
		return "ready"
	case protocol.AckGripeRegex:
		return "faulted"
	default:
		return fmt.Sprintf("unknown (ack %d)", uint8(acks[0]))
	}
}

// commandStop sends a single stop notification to whichever worker listens.
func (r Runner) commandStop(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	endpoint, err := ipc.ResolveEndpoint(cfg.Endpoint)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	out := newConsole(r.Stdout, logger)
	out.Printf("Stopping the CtrlOEM3 service.")

	manager := session.NewManager(endpoint, nil, logger)
	if err := manager.NotifyStop(ctx, out); err != nil {
		return 1
	}
	return 0
}

// commandStart launches the worker and hosts its control session until ctx ends.
func (r Runner) commandStart(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	endpoint, err := ipc.ResolveEndpoint(loaded.Config.Endpoint)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	h := newHost(hostOptions{
		Config:     loaded.Config,
		ConfigPath: loaded.Path,
		Endpoint:   endpoint,
		Console:    newConsole(r.Stdout, logger),
		Logger:     logger,
		Clock:      r.clock(),
		Warn:       func(ws []config.Warning) { r.printWarnings(ws, logger) },
	})
	return h.run(ctx, r.Restart)
}
