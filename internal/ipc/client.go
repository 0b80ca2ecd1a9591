package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rbright/ctrloem3/internal/protocol"
)

// ErrNoReply indicates the worker closed the connection without acknowledging.
var ErrNoReply = errors.New("worker closed the connection without a reply")

// Query sends one command and returns the acknowledgements carried by the
// first reply chunk. The whole roundtrip is bounded by timeout.
func Query(ctx context.Context, path string, cmd protocol.Command, timeout time.Duration) ([]protocol.Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := DefaultDialer().DialContext(ctx, Network, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := protocol.WriteCommand(conn, cmd); err != nil {
		return nil, err
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if n > 0 {
		return protocol.Decode(buf[:n]), nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrNoReply
	}
	return nil, fmt.Errorf("read reply: %w", err)
}

// Probe checks whether a responsive worker is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Query(ctx, path, protocol.CommandGetStatus, timeout)
	if err == nil {
		return true, nil
	}
	if IsSocketMissing(err) || IsConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}
