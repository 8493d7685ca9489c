package stream

import (
	"sync/atomic"

	"github.com/yanun0323/logs"
)

// State is the lifecycle of one streaming connection.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Tracker records the state of a stream. It is safe for concurrent use.
type Tracker struct {
	name  string
	state atomic.Uint32
}

// NewTracker returns a tracker in StateDisconnected.
func NewTracker(name string) *Tracker {
	return &Tracker{name: name}
}

// State returns the current state.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Transition moves to next. Only Disconnected→Connecting, Connecting→Streaming
// and any→Disconnected are legal, other moves are ignored and reported false.
func (t *Tracker) Transition(next State) bool {
	for {
		cur := State(t.state.Load())
		if !legal(cur, next) {
			return false
		}
		if t.state.CompareAndSwap(uint32(cur), uint32(next)) {
			if cur != next {
				logs.Infof("stream %s: %s -> %s", t.name, cur, next)
			}
			return true
		}
	}
}

func legal(cur, next State) bool {
	switch next {
	case StateDisconnected:
		return true
	case StateConnecting:
		return cur == StateDisconnected
	case StateStreaming:
		return cur == StateConnecting
	default:
		return false
	}
}
