package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rbright/ctrloem3/internal/config"
	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/protocol"
	"github.com/rbright/ctrloem3/internal/schedule"
	"github.com/rbright/ctrloem3/internal/session"
	"github.com/rbright/ctrloem3/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "ctrloem3")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusStoppedWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "stopped\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStatusFailsWithoutResolvableEndpoint(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("XDG_RUNTIME_DIR", "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Empty(t, stdout.String())
	require.Contains(t, stderr.String(), "error:")
	require.Contains(t, stderr.String(), "XDG_RUNTIME_DIR")
}

func TestRunnerStatusReportsWorkerState(t *testing.T) {
	cases := []struct {
		ack  protocol.Ack
		want string
	}{
		{ack: protocol.AckSayOK, want: "ready\n"},
		{ack: protocol.AckGripeRegex, want: "faulted\n"},
		{ack: protocol.Ack(9), want: "unknown (ack 9)\n"},
	}

	for _, tc := range cases {
		t.Run(strings.TrimSpace(tc.want), func(t *testing.T) {
			paths := setupRunnerEnv(t)
			shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, cmd protocol.Command) []protocol.Ack {
				require.Equal(t, protocol.CommandGetStatus, cmd)
				return []protocol.Ack{tc.ack}
			})
			defer shutdown()

			var stdout bytes.Buffer
			var stderr bytes.Buffer
			runner := Runner{Stdout: &stdout, Stderr: &stderr}

			exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
			require.Equal(t, 0, exitCode)
			require.Equal(t, tc.want, stdout.String())
			require.Empty(t, stderr.String())
		})
	}
}

func TestRunnerEndpointFlagOverridesConfig(t *testing.T) {
	paths := setupRunnerEnv(t)
	custom := filepath.Join(t.TempDir(), "custom.sock")
	shutdown := startIPCServerForRunnerTest(t, custom, func(context.Context, protocol.Command) []protocol.Ack {
		return []protocol.Ack{protocol.AckSayOK}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--endpoint", custom, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "ready\n", stdout.String())
}

func TestRunnerEndpointFlagMustBeAbsolute(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--endpoint", "relative.sock", "status"})
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "absolute socket path")
}

func TestRunnerStopFailsWithoutWorker(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "** Stopping the CtrlOEM3 service.")
	require.Contains(t, stdout.String(), "** Failed to stop the CtrlOEM3 service:")
}

func TestRunnerStopSendsNotifyStop(t *testing.T) {
	paths := setupRunnerEnv(t)
	commands := make(chan protocol.Command, 4)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath, func(_ context.Context, cmd protocol.Command) []protocol.Ack {
		commands <- cmd
		return nil
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "** Stop requested from the CtrlOEM3 service.")

	select {
	case cmd := <-commands:
		require.Equal(t, protocol.CommandNotifyStop, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never received the stop command")
	}
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "endpoint")
}

func TestRunnerStartConnectsAndStopsWorkerOnShutdown(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.useHelperWorker(t, "Visual Studio Code")

	clock := &schedule.ManualClock{}
	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runStart(ctx, runner, paths)

	waitWorkerListening(t, paths, clock, 1)
	clock.Advance(400 * time.Millisecond)
	waitForOutput(t, stdout, "** Connected to the CtrlOEM3 service.", 1)
	require.Contains(t, stdout.String(), "worker listening")

	cancel()
	require.Equal(t, 0, waitExit(t, done))
	require.Contains(t, stdout.String(), "** Stop requested from the CtrlOEM3 service.")
	require.Contains(t, stdout.String(), "** Current CtrlOEM3 instance exited as notified.")
}

func TestRunnerStartReportsRegexFailureWithHint(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.useHelperWorker(t, "(")

	clock := &schedule.ManualClock{}
	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runStart(ctx, runner, paths)

	waitWorkerListening(t, paths, clock, 1)
	clock.Advance(400 * time.Millisecond)
	waitForOutput(t, stdout, "failed to compile matches-window-title", 1)
	waitForOutput(t, stdout, "Edit worker.matches_window_title in "+paths.configPath, 1)

	cancel()
	require.Equal(t, 0, waitExit(t, done))
}

func TestRunnerStartRestartsWorkerOnSignal(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.useHelperWorker(t, "Visual Studio Code")

	clock := &schedule.ManualClock{}
	stdout := &syncBuffer{}
	restart := make(chan os.Signal, 1)
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: clock, Restart: restart}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runStart(ctx, runner, paths)

	waitWorkerListening(t, paths, clock, 1)
	clock.Advance(400 * time.Millisecond)
	waitForOutput(t, stdout, "** Connected to the CtrlOEM3 service.", 1)

	restart <- syscall.SIGHUP
	waitForOutput(t, stdout, "** A previous CtrlOEM3 instance exited as notified.", 1)
	require.Contains(t, stdout.String(), "** Restarting the CtrlOEM3 service.")

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, 2*time.Second, 10*time.Millisecond)
	clock.Advance(500 * time.Millisecond)

	waitWorkerListening(t, paths, clock, 1)
	clock.Advance(400 * time.Millisecond)
	waitForOutput(t, stdout, "** Connected to the CtrlOEM3 service.", 2)
	require.Equal(t, 2, strings.Count(stdout.String(), "** Starting the CtrlOEM3 service."))

	cancel()
	require.Equal(t, 0, waitExit(t, done))
}

func TestRunnerStartReportsCrashAndStaysUp(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.writeConfig(t, `worker: {cmd: "sh -c 'exit 3' sh"}`+"\n"+"endpoint: "+paths.socketPath+"\n")

	clock := &schedule.ManualClock{}
	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runStart(ctx, runner, paths)

	waitForOutput(t, stdout, "** Current CtrlOEM3 instance crashed, ExitCode=3.", 1)
	require.Contains(t, stdout.String(), "** Send SIGHUP to restart the CtrlOEM3 service.")

	select {
	case code := <-done:
		t.Fatalf("host exited early with %d", code)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.Equal(t, 1, waitExit(t, done))
}

func TestRunnerStartFailsWhenWorkerBinaryMissing(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.writeConfig(t, `worker: {cmd: "/definitely/missing/ctrl-oem3-native"}`+"\n")

	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: &schedule.ManualClock{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "start"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "** Failed to start a CtrlOEM3 instance:")
}

func TestRestartDiscardsSpawnTokenFromFiredTask(t *testing.T) {
	paths := setupRunnerEnv(t)
	clock := &schedule.ManualClock{}
	h := newHost(hostOptions{
		Config:     config.Default(),
		ConfigPath: paths.configPath,
		Endpoint:   paths.socketPath,
		Console:    newConsole(&syncBuffer{}, nil),
		Logger:     slog.New(slog.DiscardHandler),
		Clock:      clock,
	})

	h.spawnDue <- struct{}{}
	h.restart(context.Background())

	require.Empty(t, h.spawnDue)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(h.cfg.Worker.RestartDelay())
	require.Len(t, h.spawnDue, 1)
}

func TestRunnerStartKillsWorkerThatIgnoresStop(t *testing.T) {
	paths := setupRunnerEnv(t)
	paths.writeConfig(t, `worker: {cmd: "sh -c 'sleep 30 & wait' sh"}`+"\n"+"endpoint: "+paths.socketPath+"\n")

	stdout := &syncBuffer{}
	runner := Runner{Stdout: stdout, Stderr: &syncBuffer{}, Clock: &schedule.ManualClock{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runStart(ctx, runner, paths)

	waitForOutput(t, stdout, "** Starting the CtrlOEM3 service.", 1)
	cancel()

	require.Equal(t, 1, waitExit(t, done))
	require.Contains(t, stdout.String(), "** Failed to stop the CtrlOEM3 service:")
	require.Contains(t, stdout.String(), "** Current CtrlOEM3 instance crashed")
}

// TestHelperWorker stands in for the native worker when spawned by the host.
func TestHelperWorker(t *testing.T) {
	if os.Getenv("CTRLOEM3_HELPER_WORKER") != "1" {
		return
	}

	endpoint := os.Getenv("CTRLOEM3_HELPER_ENDPOINT")
	pattern := ""
	for _, arg := range os.Args {
		if encoded, ok := strings.CutPrefix(arg, supervisor.PatternFlag+"="); ok {
			pattern = decodePattern(encoded)
		}
	}

	reply := protocol.AckSayOK
	if pattern == "(" {
		reply = protocol.AckGripeRegex
	}

	listener, err := net.Listen(ipc.Network, endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(2)
	}
	fmt.Println("worker listening")

	ctx, cancel := context.WithCancel(context.Background())
	_ = ipc.Serve(ctx, listener, ipc.HandlerFunc(func(_ context.Context, cmd protocol.Command) []protocol.Ack {
		switch cmd {
		case protocol.CommandGetStatus:
			return []protocol.Ack{reply}
		case protocol.CommandNotifyStop:
			cancel()
		}
		return nil
	}))
	_ = os.Remove(endpoint)
	os.Exit(0)
}

type runnerPaths struct {
	configPath string
	runtimeDir string
	socketPath string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("\n"), 0o600))

	return runnerPaths{
		configPath: configPath,
		runtimeDir: runtimeDir,
		socketPath: filepath.Join(runtimeDir, "ctrloem3.sock"),
	}
}

func (p runnerPaths) writeConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(p.configPath, []byte(content), 0o600))
}

// useHelperWorker points worker.cmd at this test binary running TestHelperWorker.
func (p runnerPaths) useHelperWorker(t *testing.T, pattern string) {
	t.Helper()
	t.Setenv("CTRLOEM3_HELPER_WORKER", "1")
	t.Setenv("CTRLOEM3_HELPER_ENDPOINT", p.socketPath)

	cmd := fmt.Sprintf("%s -test.run=^TestHelperWorker$ --", os.Args[0])
	p.writeConfig(t, fmt.Sprintf(`{
  // helper worker
  "endpoint": %q,
  "worker": {
    "cmd": %q,
    "matches_window_title": %q
  }
}
`, p.socketPath, cmd, pattern))
}

func runStart(ctx context.Context, runner Runner, paths runnerPaths) <-chan int {
	done := make(chan int, 1)
	go func() {
		done <- runner.Execute(ctx, []string{"--config", paths.configPath, "start"})
	}()
	return done
}

func waitExit(t *testing.T, done <-chan int) int {
	t.Helper()
	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("host did not exit")
		return -1
	}
}

// waitWorkerListening waits for the socket and the pending timer count.
func waitWorkerListening(t *testing.T, paths runnerPaths, clock *schedule.ManualClock, pending int) {
	t.Helper()
	require.Eventually(t, func() bool {
		ok, err := ipc.Probe(context.Background(), paths.socketPath, 100*time.Millisecond)
		return err == nil && ok && clock.Pending() == pending
	}, 5*time.Second, 10*time.Millisecond)
}

func waitForOutput(t *testing.T, out *syncBuffer, want string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), want) >= count
	}, 5*time.Second, 10*time.Millisecond, "missing %q in:\n%s", want, out.String())
}

func decodePattern(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	return string(raw)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, protocol.Command) []protocol.Ack) func() {
	t.Helper()

	listener, err := net.Listen(ipc.Network, socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestHostDropsLateAckFromReplacedConnection(t *testing.T) {
	paths := setupRunnerEnv(t)
	out := &syncBuffer{}
	h := newHost(hostOptions{
		Config:     config.Default(),
		ConfigPath: paths.configPath,
		Endpoint:   paths.socketPath,
		Console:    newConsole(out, nil),
		Logger:     slog.New(slog.DiscardHandler),
		Clock:      &schedule.ManualClock{},
	})

	quiet := session.SinkFunc(func(session.Notification) {})
	h.mgr.Connect(context.Background(), quiet)
	h.mgr.Connect(context.Background(), quiet)

	h.Notify(session.Notification{Kind: session.KindDropped, Generation: 1})
	h.Notify(session.Notification{Kind: session.KindReady, Generation: 1})
	require.Contains(t, out.String(), "** Dropping an existing connection")
	require.NotContains(t, out.String(), "Connected to the CtrlOEM3 service")

	h.Notify(session.Notification{Kind: session.KindReady, Generation: 2})
	require.Contains(t, out.String(), "** Connected to the CtrlOEM3 service")
}
