package app

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/ctrloem3/internal/session"
	"github.com/rbright/ctrloem3/internal/supervisor"
)

// console is the user-facing output channel of the host. Session
// notifications and host messages are prefixed with "** ". Worker output is
// forwarded verbatim.
type console struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

func newConsole(w io.Writer, logger *slog.Logger) *console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &console{w: w, logger: logger}
}

func (c *console) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	fmt.Fprintf(c.w, "** %s\n", msg)
	c.mu.Unlock()
}

func (c *console) Notify(n session.Notification) {
	c.Printf("%s", n.String())

	fields := []any{"kind", string(n.Kind), "generation", n.Generation}
	if n.Kind == session.KindUnknownAck {
		fields = append(fields, "ack", n.Code)
	}
	if n.Err != nil {
		c.logger.Warn("session notification", append(fields, "error", n.Err.Error())...)
		return
	}
	c.logger.Info("session notification", fields...)
}

func (c *console) Line(stream supervisor.Stream, line string) {
	c.mu.Lock()
	fmt.Fprintln(c.w, line)
	c.mu.Unlock()
	c.logger.Debug("worker output", "stream", string(stream), "line", line)
}
