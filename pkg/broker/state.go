package broker

import (
	"errors"
	"fmt"
)

// State is the numeric connection state printed in the node diagnostics.
// Positive values are MQTT CONNACK refusal codes.
type State int32

const (
	StateConnectTimeout State = -4
	StateConnectionLost State = -3
	StateConnectFailed  State = -2
	StateDisconnected   State = -1
	StateConnected      State = 0
)

func (s State) String() string {
	switch s {
	case StateConnectTimeout:
		return "connect timeout"
	case StateConnectionLost:
		return "connection lost"
	case StateConnectFailed:
		return "connect failed"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case 1:
		return "refused: unacceptable protocol version"
	case 2:
		return "refused: identifier rejected"
	case 3:
		return "refused: server unavailable"
	case 4:
		return "refused: bad user name or password"
	case 5:
		return "refused: not authorized"
	}
	return fmt.Sprintf("state %d", int32(s))
}

var (
	ErrTimeout      = errors.New("mqtt operation timed out")
	ErrNotConnected = errors.New("mqtt session not connected")
)

// ConnectError carries the connection state code of a failed attempt.
type ConnectError struct {
	State State
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed, rc=%d (%s): %v", int32(e.State), e.State, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
