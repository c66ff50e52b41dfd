package stream

// ConnectionState is the lifecycle state of the websocket client. Exactly one
// state is active at a time and it is owned by the Client; all mutation goes
// through the transition table below.
type ConnectionState int32

const (
	// Disconnected is the initial state and the terminal state after an
	// explicit Disconnect.
	Disconnected ConnectionState = iota
	// Connecting means a dial is in flight.
	Connecting
	// Connected means the socket is open and subscriptions are live.
	Connected
	// Reconnecting means the socket dropped and a retry is pending.
	Reconnecting
	// Failed is terminal after exhausting reconnect attempts. Only a new
	// Connect call leaves this state.
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// connEvent is an input to the connection state machine.
type connEvent int

const (
	// evDialStart fires when a dial begins, either from Connect or from a
	// reconnect timer.
	evDialStart connEvent = iota
	// evOpenOK fires when the socket opens.
	evOpenOK
	// evOpenErr fires when a caller-initiated dial fails.
	evOpenErr
	// evClosed fires when an established socket closes for any reason other
	// than an explicit Disconnect. Heartbeat timeouts surface here too,
	// because the timeout force-closes the socket.
	evClosed
	// evDisconnect fires on explicit teardown.
	evDisconnect
	// evGiveUp fires when reconnect attempts are exhausted.
	evGiveUp
)

func (e connEvent) String() string {
	switch e {
	case evDialStart:
		return "dial_start"
	case evOpenOK:
		return "open_ok"
	case evOpenErr:
		return "open_err"
	case evClosed:
		return "closed"
	case evDisconnect:
		return "disconnect"
	case evGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// nextState returns the state the machine moves to when ev arrives in cur.
// The function is total: events that make no sense in the current state leave
// it unchanged, so a stale timer firing after teardown cannot revive a
// connection.
func nextState(cur ConnectionState, ev connEvent) ConnectionState {
	switch ev {
	case evDialStart:
		if cur == Connected {
			return cur
		}
		return Connecting
	case evOpenOK:
		if cur == Connecting {
			return Connected
		}
		return cur
	case evOpenErr:
		if cur == Connecting {
			return Disconnected
		}
		return cur
	case evClosed:
		switch cur {
		case Connected, Connecting, Reconnecting:
			return Reconnecting
		}
		return cur
	case evDisconnect:
		return Disconnected
	case evGiveUp:
		if cur == Reconnecting {
			return Failed
		}
		return cur
	}
	return cur
}
