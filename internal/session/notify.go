package session

import "fmt"

// Kind classifies a notification emitted to the host.
type Kind string

const (
	KindDropped       Kind = "dropped"
	KindReady         Kind = "ready"
	KindConfigError   Kind = "config_error"
	KindConnectFailed Kind = "connect_failed"
	KindUnknownAck    Kind = "unknown_ack"
	KindDisconnected  Kind = "disconnected"
	KindStale         Kind = "stale"
	KindStopRequested Kind = "stop_requested"
	KindStopFailed    Kind = "stop_failed"
)

// Notification is one observable status change of the control session.
type Notification struct {
	Kind       Kind
	Generation uint64
	Code       uint8
	Err        error
}

// String renders the notification as a single human-readable line.
func (n Notification) String() string {
	switch n.Kind {
	case KindDropped:
		return "Dropping an existing connection to the CtrlOEM3 service."
	case KindReady:
		return "Connected to the CtrlOEM3 service."
	case KindConfigError:
		return "The CtrlOEM3 service failed to compile matches-window-title; check the worker output, edit the setting, or restart."
	case KindConnectFailed:
		return fmt.Sprintf("Failed to connect to the CtrlOEM3 service: %v", n.Err)
	case KindUnknownAck:
		return fmt.Sprintf("Received an unknown ACK=%d from the CtrlOEM3 service.", n.Code)
	case KindDisconnected:
		return "Disconnected from the CtrlOEM3 service."
	case KindStale:
		return "An outdated connection to the CtrlOEM3 service dropped as notified."
	case KindStopRequested:
		return "Stop requested from the CtrlOEM3 service."
	case KindStopFailed:
		return fmt.Sprintf("Failed to stop the CtrlOEM3 service: %v", n.Err)
	default:
		return fmt.Sprintf("Unrecognized notification %q.", string(n.Kind))
	}
}

// Sink receives notifications. Calls for one connection arrive in order.
// Across connections there is no ordering: an acknowledgement of a connection
// that was just superseded can arrive after the next Connect reported
// KindDropped. Manager.Superseded identifies such late notifications.
type Sink interface {
	Notify(Notification)
}

// ackKind reports kinds that originate from a worker acknowledgement.
func (k Kind) ackKind() bool {
	switch k {
	case KindReady, KindConfigError, KindUnknownAck:
		return true
	default:
		return false
	}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Notification)

func (f SinkFunc) Notify(n Notification) {
	f(n)
}

// noopSink preserves session flow when no sink is wired.
type noopSink struct{}

func (noopSink) Notify(Notification) {}
