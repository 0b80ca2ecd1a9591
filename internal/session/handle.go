package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/ctrloem3/internal/protocol"
)

// closeLinger bounds how long a gracefully shut down connection waits for
// the worker to close its side.
const closeLinger = time.Second

// handle is one transport connection attempt. Its generation is its identity.
type handle struct {
	gen  uint64
	id   string
	sink Sink

	mu      sync.Mutex
	conn    net.Conn
	closing bool
	ended   bool
}

func newHandle(gen uint64, sink Sink) *handle {
	return &handle{gen: gen, id: uuid.NewString(), sink: sink}
}

// attach adopts a dialed connection unless the handle was closed meanwhile.
func (h *handle) attach(conn net.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conn = conn
	return true
}

func (h *handle) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// end marks the single terminal event of the handle. Later calls report false.
func (h *handle) end() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return false
	}
	h.ended = true
	return true
}

func (h *handle) write(cmd protocol.Command) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	return protocol.WriteCommand(conn, cmd)
}

// close force-closes the connection.
func (h *handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	if h.conn != nil {
		_ = h.conn.Close()
	}
}

// shutdown half-closes the write side and lets the worker finish the close.
func (h *handle) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	if h.conn == nil {
		return
	}
	cw, ok := h.conn.(interface{ CloseWrite() error })
	if !ok {
		_ = h.conn.Close()
		return
	}
	if err := cw.CloseWrite(); err != nil {
		_ = h.conn.Close()
		return
	}
	_ = h.conn.SetReadDeadline(time.Now().Add(closeLinger))
}
