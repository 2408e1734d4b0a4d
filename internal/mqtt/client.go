package mqtt

import (
	"context"
	"fmt"
	"time"
)

// Protocol versions understood by NewClient.
const (
	ProtocolV3 = "3.1.1"
	ProtocolV5 = "5"
)

// Message is one inbound publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handlers receive connection callbacks. They run on the client library's
// goroutines and must only hand off, never block on pipeline work.
type Handlers struct {
	OnMessage func(Message)
	OnLost    func(error)
}

// Will is the last-will publication registered at connect.
type Will struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Options configures a Client.
type Options struct {
	Broker         string // tcp://host:port
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	QoS            byte
	Will           *Will
}

// Client is the minimal broker connection used by Session.
// A Client may be connected again after it was lost or disconnected.
type Client interface {
	// Connect performs the handshake. A refused CONNACK is a *ConnectionError
	// carrying the reason code.
	Connect(ctx context.Context, h Handlers) error
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Disconnect()
	IsConnected() bool
}

// NewClient returns a client for the given protocol version.
func NewClient(protocol string, opts Options) (Client, error) {
	switch protocol {
	case "", ProtocolV3:
		return NewV3Client(opts), nil
	case ProtocolV5:
		return NewV5Client(opts), nil
	}
	return nil, fmt.Errorf("unknown mqtt protocol %q", protocol)
}
