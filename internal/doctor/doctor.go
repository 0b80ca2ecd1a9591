// Package doctor runs readiness diagnostics for config, the worker binary, and the control endpoint.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rbright/ctrloem3/internal/config"
	"github.com/rbright/ctrloem3/internal/hypr"
	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/protocol"
	"github.com/rbright/ctrloem3/internal/supervisor"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q (%s)", cfg.Path, cfg.Format),
	})

	if strings.TrimSpace(cfg.Config.Endpoint) == "" {
		checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "runtime dir is set", "XDG_RUNTIME_DIR is empty and no endpoint is configured"))
	}

	checks = append(checks, checkCommand(cfg.Config.Worker.Command.Argv, "worker.cmd"))
	checks = append(checks, checkWorkerProcesses(ctx, cfg.Config.Worker.Command.Argv))
	checks = append(checks, checkWindowPattern(ctx, cfg.Config.Worker.MatchesWindowTitle))
	checks = append(checks, checkEndpoint(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkWorkerProcesses lists live worker instances. Zero instances is not a failure.
func checkWorkerProcesses(ctx context.Context, argv []string) Check {
	if len(argv) == 0 {
		return Check{Name: "worker.process", Pass: false, Message: "command is empty"}
	}
	pids, err := supervisor.FindRunning(ctx, argv[0])
	if err != nil {
		return Check{Name: "worker.process", Pass: false, Message: err.Error()}
	}
	if len(pids) == 0 {
		return Check{Name: "worker.process", Pass: true, Message: "no worker running"}
	}
	return Check{Name: "worker.process", Pass: true, Message: fmt.Sprintf("running with pid(s) %v", pids)}
}

// checkWindowPattern previews which open windows the pattern selects.
// Only an uncompilable pattern fails; a missing compositor is skipped.
func checkWindowPattern(ctx context.Context, pattern string) Check {
	const name = "worker.matches_window_title"
	if pattern == "" {
		return Check{Name: name, Pass: true, Message: "empty pattern matches every window"}
	}

	matched, err := hypr.MatchTitles(nil, pattern)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if !hypr.Available() {
		return Check{Name: name, Pass: true, Message: "pattern compiles; hyprctl unavailable, window preview skipped"}
	}

	clients, err := hypr.QueryClients(ctx)
	if err != nil {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("pattern compiles; window preview failed: %v", err)}
	}
	matched, _ = hypr.MatchTitles(clients, pattern)
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("pattern matches %d of %d open windows", len(matched), len(clients))}
}

// checkEndpoint sends GET_STATUS and reports the worker's acknowledgement.
func checkEndpoint(ctx context.Context, cfg config.Config) Check {
	endpoint, err := ipc.ResolveEndpoint(cfg.Endpoint)
	if err != nil {
		return Check{Name: "endpoint", Pass: false, Message: err.Error()}
	}

	acks, err := ipc.Query(ctx, endpoint, protocol.CommandGetStatus, cfg.ProbeTimeout())
	if err != nil {
		if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
			return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("no worker listening at %s", endpoint)}
		}
		return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("query %s: %v", endpoint, err)}
	}

	for _, ack := range acks {
		switch ack {
		case protocol.AckSayOK:
			return Check{Name: "endpoint", Pass: true, Message: fmt.Sprintf("worker ready at %s", endpoint)}
		case protocol.AckGripeRegex:
			return Check{Name: "endpoint", Pass: false, Message: "worker rejected worker.matches_window_title"}
		}
	}
	return Check{Name: "endpoint", Pass: false, Message: fmt.Sprintf("unexpected reply %v from %s", acks, endpoint)}
}
