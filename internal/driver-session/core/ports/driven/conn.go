package driven

// ConnState is the connection lifecycle state. Owned exclusively by the
// connection manager; everyone else observes it through events.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// CloseNormalClosure is the RFC 6455 normal-closure code. Intentional
// shutdown uses it so the reconnect policy never fires.
const CloseNormalClosure = 1000

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnEvents is the sink the connection manager reports into. Calls
// arrive from the manager's own goroutines; implementations must not
// block for long.
type ConnEvents interface {
	// ConnStateChanged fires on every lifecycle edge. terminal is true
	// only for the "give up" disconnect after the retry cap, which
	// requires manual intervention to leave.
	ConnStateChanged(state ConnState, terminal bool)

	// InboundFrame delivers one raw server message.
	InboundFrame(data []byte)
}

// DispatchConn owns the wire channel to the dispatch server.
type DispatchConn interface {
	// Connect starts dialing asynchronously. An existing connection is
	// closed first. Progress is reported through ConnEvents.
	Connect()

	// Send marshals and transmits one frame. Fails with a connectivity
	// error when the connection is not established.
	Send(frame any) error

	// Close shuts the connection down with the given close code and
	// cancels any pending reconnect timer. Closing with the normal
	// closure code suppresses the reconnect policy.
	Close(code int, reason string) error

	State() ConnState
}
