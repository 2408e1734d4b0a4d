package logic

import "errors"

// ErrNotConnected rejects an enable request while the transport is down.
var ErrNotConnected = errors.New("not connected")

// Gate decides which actuator command, if any, to publish.
// It is a state machine over {Disabled, Enabled} x {Disconnected, Connected}.
// Not safe for concurrent use; the supervisor loop is its only caller.
type Gate struct {
	enabled   bool
	connected bool
	onSent    bool // an "on" went out and no "off" has followed yet
}

// NewGate creates a gate in the startup state: disabled and disconnected.
func NewGate() *Gate {
	return &Gate{}
}

// Request applies an explicit toggle request.
// Repeated requests for the current state return CommandNone.
// Enabling while disconnected returns ErrNotConnected and changes nothing.
func (g *Gate) Request(enable bool) (Command, error) {
	if enable == g.enabled {
		return CommandNone, nil
	}

	if enable {
		if !g.connected {
			return CommandNone, ErrNotConnected
		}
		g.enabled = true
		g.onSent = true
		return CommandOn, nil
	}

	g.enabled = false
	if g.onSent && g.connected {
		g.onSent = false
		return CommandOff, nil
	}
	return CommandNone, nil
}

// SetConnected records a session lifecycle transition.
// Losing the connection implicitly disables the gate without a command,
// since there is nothing to publish to.
func (g *Gate) SetConnected(connected bool) {
	g.connected = connected
	if !connected {
		g.enabled = false
		g.onSent = false
	}
}

// State returns the current control state.
func (g *Gate) State() ControlState {
	return ControlState{Enabled: g.enabled, Connected: g.connected}
}
