package client

// State is the lifecycle position of the connection manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateDisconnected
	StateReconnecting
	StateDegraded
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateConnected:      "connected",
	StateDisconnected:   "disconnected",
	StateReconnecting:   "reconnecting",
	StateDegraded:       "degraded",
	StateTerminated:     "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
