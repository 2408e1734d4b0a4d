package mqtt

import (
	"errors"
	"fmt"
)

var (
	// ErrPublishSuppressed is returned by Session.Publish while disconnected.
	// The message is dropped, never queued.
	ErrPublishSuppressed = errors.New("publish suppressed: not connected")

	// ErrConnectionLost is returned by Session.Run when the broker
	// connection drops.
	ErrConnectionLost = errors.New("connection lost")
)

// ConnectionError fails one connection attempt: a dial or handshake error,
// a timeout, a CONNACK with a non-zero reason code, or a rejected subscription.
type ConnectionError struct {
	Op         string // "dial", "connect" or "subscribe"
	ReasonCode byte   // CONNACK / SUBACK code, 0 when none was received
	Err        error
}

func (e *ConnectionError) Error() string {
	msg := "mqtt " + e.Op
	if e.ReasonCode != 0 {
		msg += fmt.Sprintf(": reason code 0x%02x", e.ReasonCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Decode failure reasons.
const (
	ReasonUnknownTopic = "unknown topic"
	ReasonMalformed    = "malformed payload"
	ReasonMissingField = "missing field"
	ReasonNotNumeric   = "value not numeric"
	ReasonBadCommand   = "unrecognised command"
)

// DecodeError drops a single inbound message.
type DecodeError struct {
	Topic  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Topic, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }
