package realtime

import (
	"fmt"
	"time"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the observable connection state. Err is the last failure and
// RetryIn the delay before the next attempt while Reconnecting.
type Status struct {
	State   State
	Err     error
	Attempt int
	RetryIn time.Duration
}

func (s Status) String() string {
	switch {
	case s.State == Reconnecting && s.Err != nil:
		return fmt.Sprintf("reconnecting in %s (attempt %d): %v", s.RetryIn.Round(time.Second), s.Attempt, s.Err)
	case s.State == Disconnected && s.Err != nil:
		return fmt.Sprintf("disconnected: %v", s.Err)
	default:
		return s.State.String()
	}
}
