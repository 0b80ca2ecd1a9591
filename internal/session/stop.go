package session

import (
	"context"
	"fmt"

	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/protocol"
)

// NotifyStop asks a running worker to exit over a separate short-lived
// connection. The current session connection is not touched and no reply is
// read. Failures are reported to sink and returned; they are never fatal.
func (m *Manager) NotifyStop(ctx context.Context, sink Sink) error {
	if sink == nil {
		sink = noopSink{}
	}

	if err := m.sendStop(ctx); err != nil {
		m.logger.Warn("stop request failed", "endpoint", m.endpoint, "error", err.Error())
		sink.Notify(Notification{Kind: KindStopFailed, Err: err})
		return err
	}

	m.logger.Info("stop requested", "endpoint", m.endpoint)
	sink.Notify(Notification{Kind: KindStopRequested})
	return nil
}

func (m *Manager) sendStop(ctx context.Context) error {
	if m.endpoint == "" {
		return ErrNoEndpoint
	}
	conn, err := m.dialer.DialContext(ctx, ipc.Network, m.endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.endpoint, err)
	}
	defer conn.Close()

	return protocol.WriteCommand(conn, protocol.CommandNotifyStop)
}
