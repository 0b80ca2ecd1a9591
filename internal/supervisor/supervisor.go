// Package supervisor launches the native worker and reports how it exits.
package supervisor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// outputGrace is how long output is still read after the worker exits.
// Descendants holding the pipes open past it are cut off.
const outputGrace = 500 * time.Millisecond

// PatternFlag is the worker flag carrying the base64-encoded window pattern.
const PatternFlag = "--matches-window-title"

type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineFunc receives one line of worker output.
type LineFunc func(Stream, string)

// ExitStatus describes how a worker process ended.
type ExitStatus struct {
	PID  int
	Code int
	Err  error
}

// Clean reports an expected exit (code 0). Any other outcome is a crash.
func (e ExitStatus) Clean() bool {
	return e.Err == nil && e.Code == 0
}

func (e ExitStatus) String() string {
	if e.Clean() {
		return "exited as notified"
	}
	if e.Err != nil {
		return fmt.Sprintf("crashed: %v", e.Err)
	}
	return fmt.Sprintf("crashed, ExitCode=%d", e.Code)
}

// Process is one running worker instance.
type Process struct {
	PID int

	cmd    *exec.Cmd
	done   chan struct{}
	status ExitStatus
}

// Done is closed once the process has exited and its output is drained or
// the output grace period has passed.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Status returns the exit status. It is only meaningful after Done.
func (p *Process) Status() ExitStatus {
	<-p.done
	return p.status
}

// Kill sends SIGKILL to the worker's whole process group without waiting for
// a stop acknowledgement. Descendants left behind by an exited worker are
// killed too.
func (p *Process) Kill() error {
	pgid := p.PID
	if actual, err := syscall.Getpgid(p.PID); err == nil && actual > 0 {
		pgid = actual
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill worker group %d: %w", pgid, err)
	}
	return nil
}

// EncodePattern encodes the window-title pattern for the worker command line.
func EncodePattern(pattern string) string {
	return base64.StdEncoding.EncodeToString([]byte(pattern))
}

// Args returns argv with the encoded pattern flag appended.
func Args(argv []string, pattern string) []string {
	out := make([]string, 0, len(argv)+1)
	out = append(out, argv...)
	return append(out, PatternFlag+"="+EncodePattern(pattern))
}

// Supervisor spawns worker processes.
type Supervisor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{logger: logger}
}

// Start launches argv plus the encoded pattern in its own process group.
// Output lines are delivered to lines until the process exits. Done closes
// once the worker itself has exited, even if descendants outlive it.
func (s *Supervisor) Start(argv []string, pattern string, lines LineFunc) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("worker command argv cannot be empty")
	}
	if lines == nil {
		lines = func(Stream, string) {}
	}

	full := Args(argv, pattern)
	cmd := exec.Command(full[0], full[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout := newLineWriter(StreamStdout, lines)
	stderr := newLineWriter(StreamStderr, lines)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = outputGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", argv[0], err)
	}

	p := &Process{PID: cmd.Process.Pid, cmd: cmd, done: make(chan struct{})}
	s.logger.Info("worker started", "pid", p.PID, "cmd", argv[0])

	go func() {
		waitErr := cmd.Wait()
		stdout.flush()
		stderr.flush()
		if errors.Is(waitErr, exec.ErrWaitDelay) {
			s.logger.Warn("worker descendants still hold its output open", "pid", p.PID)
		}
		p.status = exitStatus(p.PID, cmd, waitErr)
		s.logger.Info("worker exited", "pid", p.PID, "exit_code", p.status.Code, "clean", p.status.Clean())
		close(p.done)
	}()

	return p, nil
}

func exitStatus(pid int, cmd *exec.Cmd, waitErr error) ExitStatus {
	status := ExitStatus{PID: pid}
	if cmd.ProcessState != nil {
		status.Code = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		status.Err = waitErr
	}
	return status
}
