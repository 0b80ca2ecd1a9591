package session

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/protocol"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	ch chan Notification
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Notification, 64)}
}

func (r *recorder) Notify(n Notification) {
	r.ch <- n
}

func (r *recorder) next(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-r.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case n := <-r.ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(wait):
	}
}

// startWorker serves reply for every command on a fresh socket and records
// the commands it received.
func startWorker(t *testing.T, reply func(protocol.Command) []protocol.Ack) (string, <-chan protocol.Command) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "ctrloem3.sock")
	listener, err := net.Listen(ipc.Network, socketPath)
	require.NoError(t, err)

	commands := make(chan protocol.Command, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(func(_ context.Context, cmd protocol.Command) []protocol.Ack {
			commands <- cmd
			return reply(cmd)
		}))
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return socketPath, commands
}

func replyStatus(acks ...protocol.Ack) func(protocol.Command) []protocol.Ack {
	return func(cmd protocol.Command) []protocol.Ack {
		if cmd == protocol.CommandGetStatus {
			return acks
		}
		return nil
	}
}

// gatedDialer blocks selected dial attempts (by call order) until released.
type gatedDialer struct {
	mu    sync.Mutex
	calls int
	gates map[int]chan struct{}
}

func (g *gatedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	g.mu.Lock()
	gate := g.gates[g.calls]
	g.calls++
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}
