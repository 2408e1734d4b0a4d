package mqtt

import (
	"context"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// V3Client talks MQTT 3.1.1 through paho.mqtt.golang.
// The library's own reconnect logic is disabled; Session and its supervisor
// own reconnection.
type V3Client struct {
	client paho.Client
	qos    byte

	mu       sync.Mutex
	handlers Handlers
}

// NewV3Client creates an unconnected MQTT 3.1.1 client.
func NewV3Client(opts Options) *V3Client {
	c := &V3Client{qos: opts.QoS}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true)

	if opts.KeepAlive > 0 {
		po.SetKeepAlive(opts.KeepAlive)
	}
	if opts.ConnectTimeout > 0 {
		po.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if opts.Will != nil {
		po.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.QoS, opts.Will.Retained)
	}

	po.SetDefaultPublishHandler(func(_ paho.Client, m paho.Message) {
		if h := c.current(); h.OnMessage != nil {
			h.OnMessage(Message{Topic: m.Topic(), Payload: m.Payload(), Retained: m.Retained()})
		}
	})
	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		if h := c.current(); h.OnLost != nil {
			h.OnLost(err)
		}
	})

	c.client = paho.NewClient(po)
	return c
}

// Connect performs the MQTT handshake.
func (c *V3Client) Connect(ctx context.Context, h Handlers) error {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()

	token := c.client.Connect()
	if err := wait(ctx, token); err != nil {
		// The handshake may still complete; abort it so the client is
		// not left connected behind a failed Connect.
		c.client.Disconnect(0)
		return &ConnectionError{Op: "connect", Err: err}
	}
	if err := token.Error(); err != nil {
		ce := &ConnectionError{Op: "connect", Err: err}
		if ct, ok := token.(*paho.ConnectToken); ok {
			ce.ReasonCode = ct.ReturnCode()
		}
		return ce
	}
	return nil
}

// Subscribe subscribes to topic; messages arrive through OnMessage.
func (c *V3Client) Subscribe(ctx context.Context, topic string) error {
	token := c.client.Subscribe(topic, c.qos, nil)
	if err := wait(ctx, token); err != nil {
		return err
	}
	if err := token.Error(); err != nil {
		return err
	}
	if st, ok := token.(*paho.SubscribeToken); ok {
		if rc, found := st.Result()[topic]; found && rc >= 0x80 {
			return &ConnectionError{Op: "subscribe", ReasonCode: rc, Err: fmt.Errorf("%s refused", topic)}
		}
	}
	return nil
}

// Publish sends payload and waits for the library to hand it off (QoS 0)
// or for the broker's acknowledgement (QoS 1+), bounded by ctx.
func (c *V3Client) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, c.qos, retained, payload)
	if err := wait(ctx, token); err != nil {
		return err
	}
	return token.Error()
}

// Disconnect closes the connection, allowing up to 250ms for in-flight work.
func (c *V3Client) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports whether the connection is currently open.
func (c *V3Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *V3Client) current() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
