package transport

import "fmt"

// ConnectionState is where a Channel is in its connect cycle:
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//	Reconnecting -> Disconnected   (attempts exhausted)
//	any          -> Closed         (Disconnect)
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Down reports whether emits fail in this state. Connecting is not down: it
// only occurs before the first connection.
func (s ConnectionState) Down() bool {
	return s == StateDisconnected || s == StateReconnecting || s == StateClosed
}

// StateEvent is passed to OnStateChanged listeners. Error is the cause of a
// drop, a failed connect or giving up, and nil otherwise.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error
}

func (e StateEvent) String() string {
	if e.Error != nil {
		return fmt.Sprintf("%s -> %s: %v", e.OldState, e.NewState, e.Error)
	}
	return fmt.Sprintf("%s -> %s", e.OldState, e.NewState)
}
