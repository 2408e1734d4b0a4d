package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/paho"
)

var errNotOpen = errors.New("connection not open")

// V5Client talks MQTT 5 through paho.golang. Each Connect dials a fresh
// network connection and builds a new paho client over it.
type V5Client struct {
	opts Options

	mu     sync.Mutex
	client *paho.Client
	open   bool
}

// NewV5Client creates an unconnected MQTT 5 client.
func NewV5Client(opts Options) *V5Client {
	return &V5Client{opts: opts}
}

// Connect dials the broker and performs the MQTT 5 handshake.
func (c *V5Client) Connect(ctx context.Context, h Handlers) error {
	u, err := url.Parse(c.opts.Broker)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	var lostOnce sync.Once
	lost := func(err error) {
		lostOnce.Do(func() {
			c.mu.Lock()
			c.open = false
			c.mu.Unlock()
			if h.OnLost != nil {
				h.OnLost(err)
			}
		})
	}

	pc := paho.NewClient(paho.ClientConfig{
		ClientID: c.opts.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if h.OnMessage != nil {
					h.OnMessage(Message{
						Topic:    pr.Packet.Topic,
						Payload:  pr.Packet.Payload,
						Retained: pr.Packet.Retain,
					})
				}
				return true, nil
			},
		},
		OnClientError: lost,
		OnServerDisconnect: func(d *paho.Disconnect) {
			lost(fmt.Errorf("server disconnect: reason code 0x%02x", d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:     c.opts.ClientID,
		CleanStart:   true,
		KeepAlive:    uint16(c.opts.KeepAlive.Seconds()),
		Username:     c.opts.Username,
		UsernameFlag: c.opts.Username != "",
		Password:     []byte(c.opts.Password),
		PasswordFlag: c.opts.Password != "",
	}
	if w := c.opts.Will; w != nil {
		cp.WillMessage = &paho.WillMessage{
			Retain:  w.Retained,
			QoS:     c.opts.QoS,
			Topic:   w.Topic,
			Payload: w.Payload,
		}
	}

	ca, err := pc.Connect(ctx, cp)
	if ca != nil && ca.ReasonCode != 0 {
		_ = conn.Close()
		if err == nil {
			err = errors.New("connection refused")
		}
		return &ConnectionError{Op: "connect", ReasonCode: ca.ReasonCode, Err: err}
	}
	if err != nil {
		_ = conn.Close()
		return &ConnectionError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	c.client = pc
	c.open = true
	c.mu.Unlock()
	return nil
}

// Subscribe subscribes to topic; messages arrive through OnMessage.
func (c *V5Client) Subscribe(ctx context.Context, topic string) error {
	pc, err := c.active()
	if err != nil {
		return err
	}

	sa, err := pc.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: c.opts.QoS}},
	})
	if sa != nil && len(sa.Reasons) > 0 && sa.Reasons[0] >= 0x80 {
		return &ConnectionError{Op: "subscribe", ReasonCode: sa.Reasons[0], Err: fmt.Errorf("%s refused", topic)}
	}
	return err
}

// Publish sends payload. QoS 0 returns once written; QoS 1+ waits for
// the acknowledgement, bounded by ctx.
func (c *V5Client) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	pc, err := c.active()
	if err != nil {
		return err
	}

	_, err = pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     c.opts.QoS,
		Retain:  retained,
		Payload: payload,
	})
	return err
}

// Disconnect sends DISCONNECT with reason code 0 so the will is discarded.
func (c *V5Client) Disconnect() {
	c.mu.Lock()
	pc := c.client
	c.client = nil
	c.open = false
	c.mu.Unlock()

	if pc != nil {
		_ = pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
}

// IsConnected reports whether the connection is currently open.
func (c *V5Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *V5Client) active() (*paho.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || !c.open {
		return nil, errNotOpen
	}
	return c.client, nil
}
