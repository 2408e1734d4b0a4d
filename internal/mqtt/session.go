package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultConnectTimeout bounds a connect attempt when none is configured.
const DefaultConnectTimeout = 10 * time.Second

// Session owns one broker connection and its subscription set.
// Inbound messages and connection loss are handed to buffered channels so
// library callbacks never run pipeline code.
type Session struct {
	client  Client
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	topics []string

	msgs      chan Message
	lost      chan error
	done      chan struct{}
	closeOnce sync.Once

	connected atomic.Bool
	attempts  atomic.Uint64
	gen       atomic.Uint64
}

// NewSession creates a disconnected session that will subscribe to topics
// on every successful connect.
func NewSession(client Client, timeout time.Duration, logger *slog.Logger, topics ...string) *Session {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		client:  client,
		timeout: timeout,
		logger:  logger,
		topics:  append([]string(nil), topics...),
		msgs:    make(chan Message, 64),
		lost:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect performs one connection attempt bounded by the connect timeout,
// then subscribes to every topic in the subscription set.
// Any failure is a *ConnectionError and leaves the session disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.attempts.Add(1)
	gen := s.gen.Add(1)

	// Forget a loss signal left over from the previous connection.
	select {
	case <-s.lost:
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	h := Handlers{
		OnMessage: s.deliver,
		OnLost:    func(err error) { s.onLost(gen, err) },
	}
	if err := s.client.Connect(ctx, h); err != nil {
		return asConnectionError("connect", err)
	}
	s.connected.Store(true)

	s.mu.Lock()
	topics := append([]string(nil), s.topics...)
	s.mu.Unlock()

	for _, topic := range topics {
		if err := s.client.Subscribe(ctx, topic); err != nil {
			s.connected.Store(false)
			s.client.Disconnect()
			return asConnectionError("subscribe", fmt.Errorf("%s: %w", topic, err))
		}
	}

	s.logger.Info("connected", "attempt", s.attempts.Load(), "topics", len(topics))
	return nil
}

// Subscribe adds topic to the subscription set and, if connected,
// subscribes immediately.
func (s *Session) Subscribe(ctx context.Context, topic string) error {
	s.mu.Lock()
	for _, t := range s.topics {
		if t == topic {
			s.mu.Unlock()
			return nil
		}
	}
	s.topics = append(s.topics, topic)
	s.mu.Unlock()

	if !s.connected.Load() {
		return nil
	}
	if err := s.client.Subscribe(ctx, topic); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload on topic. While disconnected the message is
// dropped and ErrPublishSuppressed is returned.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !s.connected.Load() {
		s.logger.Info("publish suppressed", "topic", topic)
		return ErrPublishSuppressed
	}
	if err := s.client.Publish(ctx, topic, payload, retained); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Messages delivers inbound messages in arrival order.
func (s *Session) Messages() <-chan Message {
	return s.msgs
}

// Lost receives one value each time an established connection drops.
func (s *Session) Lost() <-chan error {
	return s.lost
}

// Run dispatches inbound messages to handler until ctx is done (returns
// nil) or the connection drops (returns an error wrapping ErrConnectionLost).
func (s *Session) Run(ctx context.Context, handler func(Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.lost:
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		case m := <-s.msgs:
			handler(m)
		}
	}
}

// Disconnect closes the connection cleanly and ends the session.
// It is safe to call more than once.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		if s.connected.Swap(false) {
			s.client.Disconnect()
		}
		close(s.done)
		s.logger.Info("disconnected")
	})
}

// IsConnected reports whether the last connect succeeded and the
// connection has not dropped since.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// Attempts returns the number of connect attempts made so far.
func (s *Session) Attempts() uint64 {
	return s.attempts.Load()
}

func (s *Session) deliver(m Message) {
	select {
	case s.msgs <- m:
	case <-s.done:
	}
}

func (s *Session) onLost(gen uint64, err error) {
	if gen != s.gen.Load() || !s.connected.CompareAndSwap(true, false) {
		return
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	s.logger.Warn("connection lost", "error", err)
	select {
	case s.lost <- err:
	default:
	}
}

func asConnectionError(op string, err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
