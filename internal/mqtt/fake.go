package mqtt

import (
	"context"
	"errors"
	"sync"
)

// Publication is one message recorded by FakeClient.
type Publication struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeClient is a scriptable Client for tests.
// It is safe for concurrent use.
type FakeClient struct {
	mu sync.Mutex

	// returned by successive Connect calls; a nil entry or an exhausted
	// list means success
	connectErrors  []error
	subscribeError error
	publishError   error

	handlers      Handlers
	connected     bool
	connects      int
	disconnects   int
	subscriptions []string
	published     []Publication

	connectedCh chan struct{}
}

// NewFakeClient creates a FakeClient whose first len(connectErrors)
// Connect calls return the given errors in order.
func NewFakeClient(connectErrors ...error) *FakeClient {
	return &FakeClient{
		connectErrors: connectErrors,
		connectedCh:   make(chan struct{}, 16),
	}
}

// FailConnects queues errors for the next Connect calls.
func (f *FakeClient) FailConnects(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErrors = append(f.connectErrors, errs...)
}

// SetSubscribeError makes every Subscribe fail with err (nil clears it).
func (f *FakeClient) SetSubscribeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeError = err
}

// SetPublishError makes every Publish fail with err (nil clears it).
func (f *FakeClient) SetPublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishError = err
}

// Connect records the attempt and consumes one scripted error.
func (f *FakeClient) Connect(ctx context.Context, h Handlers) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.connects++
	if len(f.connectErrors) > 0 {
		err := f.connectErrors[0]
		f.connectErrors = f.connectErrors[1:]
		if err != nil {
			f.mu.Unlock()
			return err
		}
	}
	f.handlers = h
	f.connected = true
	f.mu.Unlock()

	select {
	case f.connectedCh <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe records topic.
func (f *FakeClient) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeError != nil {
		return f.subscribeError
	}
	if !f.connected {
		return errors.New("fake: not connected")
	}
	f.subscriptions = append(f.subscriptions, topic)
	return nil
}

// Publish records the publication.
func (f *FakeClient) Publish(_ context.Context, topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishError != nil {
		return f.publishError
	}
	f.published = append(f.published, Publication{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		Retained: retained,
	})
	return nil
}

// Disconnect marks the client as disconnected.
func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

// IsConnected reports whether the fake is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Deliver simulates an inbound message from the broker.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()

	if h.OnMessage != nil {
		h.OnMessage(Message{Topic: topic, Payload: payload})
	}
}

// Drop simulates an unexpected connection loss.
func (f *FakeClient) Drop(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.handlers
	f.mu.Unlock()

	if h.OnLost != nil {
		h.OnLost(err)
	}
}

// Connected receives a value after every successful Connect.
func (f *FakeClient) Connected() <-chan struct{} {
	return f.connectedCh
}

// Connects returns the number of Connect calls.
func (f *FakeClient) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns the number of Disconnect calls.
func (f *FakeClient) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// Subscriptions returns the subscribed topics in order.
func (f *FakeClient) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscriptions...)
}

// Published returns every recorded publication in order.
func (f *FakeClient) Published() []Publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Publication(nil), f.published...)
}

// PublishedTo returns the payloads published on topic, in order.
func (f *FakeClient) PublishedTo(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, string(p.Payload))
		}
	}
	return out
}

// Reset clears recorded publications and subscriptions.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
	f.subscriptions = nil
	f.publishError = nil
	f.subscribeError = nil
}
