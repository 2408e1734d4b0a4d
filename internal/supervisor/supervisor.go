// Package supervisor drives the telemetry pipeline: it owns the broker
// session, reconnects with backoff, and sequences decode, store, classify
// and gate for every inbound message.
//
// All pipeline state is written from the single goroutine running Run.
// Other goroutines read snapshots from the history store and status
// tracker, and submit intents through RequestToggle and Ingest.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sweeney/dht-telemetry/internal/gpio"
	"github.com/sweeney/dht-telemetry/internal/history"
	"github.com/sweeney/dht-telemetry/internal/logic"
	"github.com/sweeney/dht-telemetry/internal/mqtt"
	"github.com/sweeney/dht-telemetry/internal/retry"
	"github.com/sweeney/dht-telemetry/internal/status"
)

// Role selects subscriptions and local behaviour.
type Role string

const (
	// RoleDashboard consumes readings and issues toggle requests.
	RoleDashboard Role = "dashboard"
	// RoleDevice produces readings and drives the indicator.
	RoleDevice Role = "device"
)

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDashboard, RoleDevice:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want dashboard or device)", s)
}

// Subscriptions returns the topics a role listens on.
func Subscriptions(role Role, topics mqtt.Topics) []string {
	if role == RoleDevice {
		return []string{topics.Control}
	}
	return []string{topics.Temperature, topics.Humidity, topics.Control}
}

// ErrStopped is returned to callers once Run has returned.
var ErrStopped = errors.New("supervisor stopped")

// StopReason is a context cancellation cause naming why the daemon stops,
// e.g. "SIGTERM". It is reported in the SHUTDOWN event.
type StopReason string

func (r StopReason) Error() string { return string(r) }

const (
	defaultPublishTimeout = 5 * time.Second
	heartbeatCheck        = time.Second
)

// Options configures a Supervisor.
type Options struct {
	Role           Role
	Topics         mqtt.Topics
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// Backoff schedules reconnect attempts. Defaults to an unlimited
	// exponential backoff from 1s to 30s.
	Backoff retry.Policy

	// Heartbeat is the HEARTBEAT interval; 0 disables it.
	Heartbeat time.Duration
	// HeartbeatTick overrides the heartbeat check ticker (tests).
	HeartbeatTick <-chan time.Time

	Store     *history.Store
	Tracker   *status.Tracker
	Indicator gpio.Indicator // optional

	// Network, if set, is re-read at startup and before every heartbeat.
	Network func() *status.NetworkInfo

	// OnChange is called from the loop after state visible to the
	// presentation layer changed. It must not block.
	OnChange func()

	Logger *slog.Logger
	Now    func() time.Time
}

type toggleRequest struct {
	enable bool
	reply  chan error
}

type localReading struct {
	metric logic.Metric
	value  float64
}

// Supervisor runs the pipeline loop.
type Supervisor struct {
	opts    Options
	session *mqtt.Session
	logger  *slog.Logger
	now     func() time.Time

	// loop-owned state
	gate          *logic.Gate
	zones         *logic.ZoneTracker
	heartbeat     *logic.Heartbeat
	counts        status.Counts
	connecting    bool
	connected     bool
	everConnected bool

	online   atomic.Bool // mirror of connected for RequestToggle
	toggles  chan toggleRequest
	readings chan localReading
	stopped  chan struct{}
}

// New creates a supervisor that will drive client.
func New(client mqtt.Client, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.Store == nil {
		opts.Store = history.NewStore(history.DefaultCapacity)
	}
	if opts.Tracker == nil {
		opts.Tracker = status.NewTracker(opts.Now(), status.Config{Role: string(opts.Role)})
	}
	if opts.Backoff == nil {
		opts.Backoff = &retry.ExponentialBackoff{
			Logger: opts.Logger.With("component", "retry"),
		}
	}

	logger := opts.Logger.With("component", "supervisor", "role", string(opts.Role))
	session := mqtt.NewSession(client, opts.ConnectTimeout,
		opts.Logger.With("component", "mqtt"),
		Subscriptions(opts.Role, opts.Topics)...)

	return &Supervisor{
		opts:     opts,
		session:  session,
		logger:   logger,
		now:      opts.Now,
		gate:     logic.NewGate(),
		zones:    logic.NewZoneTracker(),
		toggles:  make(chan toggleRequest, 8),
		readings: make(chan localReading, 16),
		stopped:  make(chan struct{}),
	}
}

// Store returns the history store written by the loop.
func (s *Supervisor) Store() *history.Store { return s.opts.Store }

// Tracker returns the status tracker written by the loop.
func (s *Supervisor) Tracker() *status.Tracker { return s.opts.Tracker }

// Attempts returns the number of connect attempts so far.
func (s *Supervisor) Attempts() uint64 { return s.session.Attempts() }

// Run connects, processes messages and local intents until ctx is done,
// then publishes SHUTDOWN and disconnects. Connection failures are retried
// indefinitely; Run returns nil on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.stopped)

	start := s.now()
	s.heartbeat = logic.NewHeartbeat(s.opts.Heartbeat, start)
	hbTick := s.opts.HeartbeatTick
	if hbTick == nil && s.opts.Heartbeat > 0 {
		ticker := time.NewTicker(min(s.opts.Heartbeat, heartbeatCheck))
		defer ticker.Stop()
		hbTick = ticker.C
	}

	s.showIndicator(logic.ColorOff)
	s.refreshNetwork()
	s.syncStatus()

	connectDone := make(chan error, 1)
	s.startConnect(ctx, connectDone)

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx, connectDone)
			return nil

		case err := <-connectDone:
			s.connecting = false
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				// Only a bounded policy gives up; keep trying anyway.
				s.logger.Error("connect gave up, restarting backoff", "error", err)
				s.startConnect(ctx, connectDone)
				continue
			}
			s.onConnected(ctx, connectDone)

		case err := <-s.session.Lost():
			if !s.connected {
				continue
			}
			s.onLost(ctx, err, connectDone)

		case m := <-s.session.Messages():
			s.handleMessage(ctx, m)

		case req := <-s.toggles:
			req.reply <- s.applyToggle(ctx, req.enable, true)

		case r := <-s.readings:
			s.handleLocal(ctx, r)

		case t := <-hbTick:
			s.checkHeartbeat(ctx, t)
		}
	}
}

// RequestToggle asks the loop to enable or disable the actuator.
// Enabling while disconnected fails immediately with logic.ErrNotConnected;
// otherwise the call waits for the loop's verdict.
func (s *Supervisor) RequestToggle(ctx context.Context, enable bool) error {
	if enable && !s.online.Load() {
		return logic.ErrNotConnected
	}

	req := toggleRequest{enable: enable, reply: make(chan error, 1)}
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	select {
	case s.toggles <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Ingest submits a locally read value (device role). The loop publishes it
// and feeds it through the same decode path as inbound readings.
func (s *Supervisor) Ingest(ctx context.Context, metric logic.Metric, value float64) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	select {
	case s.readings <- localReading{metric: metric, value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Connected reports whether the broker session is up.
func (s *Supervisor) Connected() bool {
	return s.online.Load()
}

func (s *Supervisor) startConnect(ctx context.Context, done chan<- error) {
	if s.connecting {
		return
	}
	s.connecting = true
	go func() {
		done <- s.opts.Backoff.Start(ctx, "connect", func(ctx context.Context) (bool, error) {
			return true, s.session.Connect(ctx)
		})
	}()
}

func (s *Supervisor) onConnected(ctx context.Context, connectDone chan<- error) {
	// The connection may have dropped before the result was read.
	if !s.session.IsConnected() {
		s.logger.Warn("connection dropped during setup")
		s.startConnect(ctx, connectDone)
		return
	}

	s.connected = true
	s.online.Store(true)
	s.gate.SetConnected(true)

	now := s.now()
	if s.everConnected {
		s.counts.Reconnects++
		s.logger.Info("reconnected", "attempts", s.session.Attempts())
		s.publishSystem(ctx, mqtt.SystemEvent{Timestamp: now, Event: mqtt.EventReconnected, Retained: true})
	} else {
		s.logger.Info("connected", "attempts", s.session.Attempts())
		s.syncStatus()
		snap := s.opts.Tracker.Snapshot()
		s.publishSystem(ctx, mqtt.SystemEvent{
			Timestamp:  now,
			Event:      mqtt.EventStartup,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
		})
	}
	s.everConnected = true
	s.syncStatus()
}

func (s *Supervisor) onLost(ctx context.Context, err error, connectDone chan<- error) {
	s.logger.Warn("connection lost, reconnecting", "error", err)

	s.connected = false
	s.online.Store(false)
	s.gate.SetConnected(false)

	// Requests queued before the drop see the disconnected gate.
	for drained := false; !drained; {
		select {
		case req := <-s.toggles:
			req.reply <- s.applyToggle(ctx, req.enable, true)
		default:
			drained = true
		}
	}

	s.syncStatus()
	s.startConnect(ctx, connectDone)
}

func (s *Supervisor) handleMessage(ctx context.Context, m mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.counts.Dropped++
			s.logger.Error("message handler panicked", "topic", m.Topic, "panic", r)
			s.syncStatus()
		}
	}()

	s.counts.Received++

	if m.Topic == s.opts.Topics.Control {
		cmd, err := mqtt.ParseCommand(m.Topic, m.Payload)
		if err != nil {
			s.counts.Dropped++
			s.logger.Warn("dropping control message", "error", err)
			s.syncStatus()
			return
		}
		if err := s.applyToggle(ctx, cmd == logic.CommandOn, false); err != nil {
			s.logger.Info("control request rejected", "command", string(cmd), "error", err)
		}
		return
	}

	s.handleReading(m.Topic, m.Payload)
}

func (s *Supervisor) handleReading(topic string, payload []byte) {
	sample, err := mqtt.DecodeReading(topic, payload, s.opts.Topics, s.now())
	if err != nil {
		s.counts.Dropped++
		s.logger.Warn("dropping message", "error", err)
		s.syncStatus()
		return
	}

	s.opts.Store.Append(sample)
	s.opts.Tracker.RecordSample(sample)
	s.counts.Decoded++

	if sample.Metric() == logic.MetricTemperature {
		zone, change := s.zones.Observe(sample)
		color := logic.IndicatorFor(zone)
		if change != nil {
			s.logger.Info("zone change",
				"from", string(change.From),
				"to", string(change.To),
				"temperature", change.Value)
		}
		s.counts.Zones = s.zones.CountsSnapshot()
		s.opts.Tracker.SetZone(zone, color)
		s.showIndicator(color)
	}

	s.syncStatus()
}

func (s *Supervisor) handleLocal(ctx context.Context, r localReading) {
	topic := s.opts.Topics.TopicFor(r.metric)
	payload, err := mqtt.FormatReading(r.metric, r.value, s.now())
	if err != nil {
		s.counts.Dropped++
		s.logger.Warn("dropping local reading", "metric", string(r.metric), "error", err)
		return
	}

	s.publish(ctx, topic, payload, false)
	s.handleReading(topic, payload)
}

// applyToggle runs a toggle through the gate. Commands are published only
// for local requests; a request read from the control topic is already on
// the wire.
func (s *Supervisor) applyToggle(ctx context.Context, enable, local bool) error {
	cmd, err := s.gate.Request(enable)
	if err != nil {
		return err
	}

	if cmd != logic.CommandNone {
		s.logger.Info("control", "enabled", enable, "command", string(cmd), "local", local)
		if local && s.publish(ctx, s.opts.Topics.Control, mqtt.FormatCommand(cmd), false) {
			s.counts.Commands++
		}
	}

	s.syncStatus()
	return nil
}

func (s *Supervisor) checkHeartbeat(ctx context.Context, t time.Time) {
	if !s.heartbeat.Due(t) {
		return
	}

	s.refreshNetwork()
	s.syncStatus()
	snap := s.opts.Tracker.Snapshot()
	s.logger.Info("heartbeat",
		"uptime", snap.Uptime().Truncate(time.Second),
		"received", s.counts.Received,
		"dropped", s.counts.Dropped,
		"zone", string(snap.Zone))

	s.publishSystem(ctx, mqtt.SystemEvent{
		Timestamp:  t,
		Event:      mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
	})
}

func (s *Supervisor) refreshNetwork() {
	if s.opts.Network == nil {
		return
	}
	if info := s.opts.Network(); info != nil {
		s.opts.Tracker.SetNetwork(info)
	}
}

func (s *Supervisor) shutdown(ctx context.Context, connectDone <-chan error) {
	// Let an in-flight connect attempt observe the cancellation.
	if s.connecting {
		<-connectDone
		s.connecting = false
		if !s.connected && s.session.IsConnected() {
			s.connected = true
		}
	}

	reason := "CONTEXT_CANCELED"
	var r StopReason
	if errors.As(context.Cause(ctx), &r) {
		reason = string(r)
	}

	if s.connected {
		s.syncStatus()
		snap := s.opts.Tracker.Snapshot()
		s.publishSystem(context.WithoutCancel(ctx), mqtt.SystemEvent{
			Timestamp:  s.now(),
			Event:      mqtt.EventShutdown,
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
		})
	}

	s.session.Disconnect()
	s.connected = false
	s.online.Store(false)
	s.gate.SetConnected(false)
	s.syncStatus()
	s.logger.Info("stopped", "reason", reason)
}

// publish reports whether the message was handed to the broker.
func (s *Supervisor) publish(ctx context.Context, topic string, payload []byte, retained bool) bool {
	pctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()

	err := s.session.Publish(pctx, topic, payload, retained)
	switch {
	case err == nil:
		return true
	case errors.Is(err, mqtt.ErrPublishSuppressed):
		s.counts.Suppressed++
	default:
		s.logger.Warn("publish failed", "topic", topic, "error", err)
	}
	return false
}

func (s *Supervisor) publishSystem(ctx context.Context, event mqtt.SystemEvent) {
	payload, err := mqtt.FormatSystemPayload(event)
	if err != nil {
		s.logger.Error("format system event", "event", event.Event, "error", err)
		return
	}
	topic := s.opts.Topics.SystemTopic(string(s.opts.Role))
	if s.publish(ctx, topic, payload, event.Retained) {
		s.logger.Debug("published system event", "event", event.Event)
	}
}

func (s *Supervisor) showIndicator(color logic.Color) {
	if s.opts.Indicator == nil {
		return
	}
	if err := s.opts.Indicator.Show(color); err != nil {
		s.logger.Warn("indicator update failed", "color", string(color), "error", err)
	}
}

func (s *Supervisor) syncStatus() {
	s.opts.Tracker.SetControl(s.gate.State())
	s.opts.Tracker.SetCounts(s.counts)
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
