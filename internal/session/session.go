// Package session owns the single logical connection to the worker's
// control endpoint and routes its acknowledgements to the host.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/ctrloem3/internal/fsm"
	"github.com/rbright/ctrloem3/internal/ipc"
	"github.com/rbright/ctrloem3/internal/protocol"
)

const readBufferSize = 256

// ErrNoEndpoint indicates the manager was built without an endpoint address.
var ErrNoEndpoint = errors.New("control endpoint is not configured")

// Manager holds at most one current connection to the control endpoint.
//
// Every transport event carries the generation of the handle it belongs to.
// Events whose generation is not the current one are stale: they never
// change manager state.
type Manager struct {
	endpoint string
	dialer   ipc.Dialer
	logger   *slog.Logger

	mu      sync.Mutex
	gen     uint64
	current *handle
	state   fsm.State
}

// NewManager constructs a manager for endpoint with safe default fallbacks.
func NewManager(endpoint string, dialer ipc.Dialer, logger *slog.Logger) *Manager {
	if dialer == nil {
		dialer = ipc.DefaultDialer()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		endpoint: endpoint,
		dialer:   dialer,
		logger:   logger,
		state:    fsm.StateDisconnected,
	}
}

// Endpoint returns the configured endpoint address.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// State returns the state of the current session.
func (m *Manager) State() fsm.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the number of Connect calls made so far.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Connected reports whether a current handle exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Superseded reports whether n is an acknowledgement notification from a
// connection that is no longer the newest one.
func (m *Manager) Superseded(n Notification) bool {
	if !n.Kind.ackKind() || n.Generation == 0 {
		return false
	}
	return n.Generation < m.Generation()
}

// Connect drops any current connection and starts a new one that becomes
// current immediately. Dialing, the status query, and acknowledgement
// dispatch happen asynchronously; outcomes are reported to sink.
// Cancelling ctx closes the connection.
func (m *Manager) Connect(ctx context.Context, sink Sink) {
	if sink == nil {
		sink = noopSink{}
	}

	m.mu.Lock()
	previous := m.current
	m.gen++
	h := newHandle(m.gen, sink)
	m.current = h
	m.advanceLocked(fsm.EventDial)
	m.mu.Unlock()

	if previous != nil {
		previous.close()
		m.logger.Info("dropped existing connection", "generation", previous.gen, "conn_id", previous.id)
		sink.Notify(Notification{Kind: KindDropped, Generation: previous.gen})
	}

	m.logger.Info("connecting", "generation", h.gen, "conn_id", h.id, "endpoint", m.endpoint)
	go m.run(ctx, h)
}

// Disconnect gracefully shuts down the current connection, if any.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	h := m.current
	if h != nil {
		m.current = nil
		m.advanceLocked(fsm.EventDrop)
	}
	m.mu.Unlock()

	if h == nil {
		return
	}
	m.logger.Info("disconnecting", "generation", h.gen, "conn_id", h.id)
	h.shutdown()
}

// run drives one handle from dial to its terminal close or error event.
func (m *Manager) run(ctx context.Context, h *handle) {
	defer func() {
		if r := recover(); r != nil {
			m.onError(h, fmt.Errorf("panic in connection event: %v", r))
		}
	}()

	stop := context.AfterFunc(ctx, h.close)
	defer stop()

	if m.endpoint == "" {
		m.onError(h, ErrNoEndpoint)
		return
	}

	conn, err := m.dialer.DialContext(ctx, ipc.Network, m.endpoint)
	if err != nil {
		if h.isClosing() {
			m.onClose(h)
			return
		}
		m.onError(h, fmt.Errorf("dial %s: %w", m.endpoint, err))
		return
	}
	if !h.attach(conn) {
		_ = conn.Close()
		m.onClose(h)
		return
	}

	if err := m.onConnected(h); err != nil {
		m.onError(h, err)
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			protocol.Dispatch(buf[:n], ackRouter{m: m, h: h})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || h.isClosing() {
				m.onClose(h)
				return
			}
			m.onError(h, fmt.Errorf("read: %w", err))
			return
		}
	}
}

// onConnected sends the status query when h is still current.
func (m *Manager) onConnected(h *handle) error {
	m.mu.Lock()
	if !m.isCurrentLocked(h) {
		m.mu.Unlock()
		m.logger.Info("connected on outdated connection", "generation", h.gen, "conn_id", h.id)
		return nil
	}
	m.advanceLocked(fsm.EventConnected)
	m.mu.Unlock()

	m.logger.Debug("connected", "generation", h.gen, "conn_id", h.id)
	return h.write(protocol.CommandGetStatus)
}

func (m *Manager) onError(h *handle, err error) {
	if !h.end() {
		return
	}

	m.mu.Lock()
	current := m.isCurrentLocked(h)
	if current {
		m.current = nil
		m.advanceLocked(fsm.EventDrop)
	}
	m.mu.Unlock()
	h.close()

	if !current {
		m.logger.Info("error on outdated connection", "generation", h.gen, "conn_id", h.id, "error", err.Error())
		return
	}
	m.logger.Warn("connection failed", "generation", h.gen, "conn_id", h.id, "error", err.Error())
	h.sink.Notify(Notification{Kind: KindConnectFailed, Generation: h.gen, Err: err})
}

func (m *Manager) onClose(h *handle) {
	if !h.end() {
		return
	}

	m.mu.Lock()
	current := m.isCurrentLocked(h)
	if current {
		m.current = nil
		m.advanceLocked(fsm.EventDrop)
	}
	m.mu.Unlock()
	h.close()

	if !current {
		m.logger.Info("outdated connection closed", "generation", h.gen, "conn_id", h.id)
		h.sink.Notify(Notification{Kind: KindStale, Generation: h.gen})
		return
	}
	m.logger.Info("disconnected", "generation", h.gen, "conn_id", h.id)
	h.sink.Notify(Notification{Kind: KindDisconnected, Generation: h.gen})
}

// acknowledge applies an acknowledgement event. It reports false when h is
// no longer current, in which case nothing may be emitted.
func (m *Manager) acknowledge(h *handle, event fsm.Event, ack protocol.Ack) bool {
	m.mu.Lock()
	current := m.isCurrentLocked(h)
	if current && event != "" {
		m.advanceLocked(event)
	}
	m.mu.Unlock()

	if !current {
		m.logger.Info("ignoring ack on outdated connection", "generation", h.gen, "conn_id", h.id, "ack", ack.String())
		return false
	}
	m.logger.Debug("ack", "generation", h.gen, "conn_id", h.id, "ack", ack.String())
	return true
}

func (m *Manager) isCurrentLocked(h *handle) bool {
	return m.current != nil && m.current.gen == h.gen
}

// advanceLocked applies event to the state machine. Invalid transitions keep
// the current state.
func (m *Manager) advanceLocked(event fsm.Event) {
	next, err := fsm.Transition(m.state, event)
	if err != nil {
		m.logger.Debug("state unchanged", "state", m.state, "event", event, "error", err.Error())
		return
	}
	m.state = next
}

// ackRouter dispatches acknowledgements for one handle.
type ackRouter struct {
	m *Manager
	h *handle
}

func (r ackRouter) SayOK() {
	if r.m.acknowledge(r.h, fsm.EventSayOK, protocol.AckSayOK) {
		r.h.sink.Notify(Notification{Kind: KindReady, Generation: r.h.gen})
	}
}

func (r ackRouter) GripeRegex() {
	if r.m.acknowledge(r.h, fsm.EventGripeRegex, protocol.AckGripeRegex) {
		r.h.sink.Notify(Notification{Kind: KindConfigError, Generation: r.h.gen, Code: uint8(protocol.AckGripeRegex)})
	}
}

func (r ackRouter) Unknown(ack protocol.Ack) {
	if !r.m.acknowledge(r.h, "", ack) {
		return
	}
	r.m.logger.Warn("unknown ack", "generation", r.h.gen, "conn_id", r.h.id, "ack", uint8(ack))
	r.h.sink.Notify(Notification{Kind: KindUnknownAck, Generation: r.h.gen, Code: uint8(ack)})
}
