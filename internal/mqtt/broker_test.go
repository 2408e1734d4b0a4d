package mqtt_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/dht-telemetry/internal/logic"
	"github.com/sweeney/dht-telemetry/internal/mqtt"
)

const (
	brokerUser     = "sensor"
	brokerPassword = "pineapple"
)

// startBroker spins up an in-process broker on port. With a ledger only
// brokerUser/brokerPassword may connect.
func startBroker(t *testing.T, port int, withLedger bool) string {
	t.Helper()

	server := mochi.New(nil)
	if withLedger {
		ledger := &auth.Ledger{
			// Auth disallows all by default
			Auth: auth.AuthRules{
				{
					Username: auth.RString(brokerUser),
					Password: auth.RString(brokerPassword),
					Allow:    true,
				},
			},
		}
		require.NoError(t, server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}))
	} else {
		require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("tcp-%d", port),
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return "tcp://" + addr
}

func newSession(t *testing.T, protocol, broker, id string, topics ...string) *mqtt.Session {
	t.Helper()
	client, err := mqtt.NewClient(protocol, mqtt.Options{
		Broker:         broker,
		ClientID:       id,
		Username:       brokerUser,
		Password:       brokerPassword,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		QoS:            1,
	})
	require.NoError(t, err)

	s := mqtt.NewSession(client, 5*time.Second, nil, topics...)
	t.Cleanup(s.Disconnect)
	return s
}

func TestBrokerRoundTrip(t *testing.T) {
	for i, protocol := range []string{mqtt.ProtocolV3, mqtt.ProtocolV5} {
		t.Run("mqtt"+protocol, func(t *testing.T) {
			broker := startBroker(t, 18830+i, true)
			topics := mqtt.DefaultTopics()
			ctx := context.Background()

			dashboard := newSession(t, protocol, broker, "dashboard-test", topics.Temperature, topics.Control)
			require.NoError(t, dashboard.Connect(ctx))
			require.True(t, dashboard.IsConnected())

			device := newSession(t, protocol, broker, "device-test", topics.Control)
			require.NoError(t, device.Connect(ctx))

			payload, err := mqtt.FormatReading(logic.MetricTemperature, 27.3, time.Unix(1760000000, 0))
			require.NoError(t, err)
			require.NoError(t, device.Publish(ctx, topics.Temperature, payload, false))

			select {
			case m := <-dashboard.Messages():
				require.Equal(t, topics.Temperature, m.Topic)
				s, err := mqtt.DecodeReading(m.Topic, m.Payload, topics, time.Now())
				require.NoError(t, err)
				require.Equal(t, 27.3, s.Value())
			case <-time.After(5 * time.Second):
				t.Fatal("reading not delivered")
			}

			require.NoError(t, dashboard.Publish(ctx, topics.Control, mqtt.FormatCommand(logic.CommandOn), false))

			select {
			case m := <-device.Messages():
				require.Equal(t, topics.Control, m.Topic)
				cmd, err := mqtt.ParseCommand(m.Topic, m.Payload)
				require.NoError(t, err)
				require.Equal(t, logic.CommandOn, cmd)
			case <-time.After(5 * time.Second):
				t.Fatal("command not delivered")
			}
		})
	}
}

func TestBrokerRejectsBadCredentials(t *testing.T) {
	for i, protocol := range []string{mqtt.ProtocolV3, mqtt.ProtocolV5} {
		t.Run("mqtt"+protocol, func(t *testing.T) {
			broker := startBroker(t, 18840+i, true)

			client, err := mqtt.NewClient(protocol, mqtt.Options{
				Broker:         broker,
				ClientID:       "intruder",
				Username:       brokerUser,
				Password:       "wrong",
				ConnectTimeout: 5 * time.Second,
			})
			require.NoError(t, err)

			s := mqtt.NewSession(client, 5*time.Second, nil, "a")
			t.Cleanup(s.Disconnect)

			err = s.Connect(context.Background())
			var ce *mqtt.ConnectionError
			require.True(t, errors.As(err, &ce), "expected ConnectionError, got %v", err)
			require.NotZero(t, ce.ReasonCode)
			require.False(t, s.IsConnected())
		})
	}
}

func TestBrokerUnreachable(t *testing.T) {
	for _, protocol := range []string{mqtt.ProtocolV3, mqtt.ProtocolV5} {
		t.Run("mqtt"+protocol, func(t *testing.T) {
			// Nothing listens on this port.
			s := newSession(t, protocol, "tcp://127.0.0.1:18859", "nobody")

			err := s.Connect(context.Background())
			var ce *mqtt.ConnectionError
			require.True(t, errors.As(err, &ce), "expected ConnectionError, got %v", err)
			require.False(t, s.IsConnected())
		})
	}
}

func TestBrokerShutdownSignalsLoss(t *testing.T) {
	for i, protocol := range []string{mqtt.ProtocolV3, mqtt.ProtocolV5} {
		t.Run("mqtt"+protocol, func(t *testing.T) {
			server := mochi.New(nil)
			require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
			addr := fmt.Sprintf("127.0.0.1:%d", 18850+i)
			require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
				ID:      "loss",
				Type:    "tcp",
				Address: addr,
			})))
			require.NoError(t, server.Serve())

			s := newSession(t, protocol, "tcp://"+addr, "loss-test", "a")
			require.NoError(t, s.Connect(context.Background()))

			require.NoError(t, server.Close())

			select {
			case <-s.Lost():
			case <-time.After(5 * time.Second):
				t.Fatal("loss not signalled")
			}
			require.False(t, s.IsConnected())

			err := s.Publish(context.Background(), "a", []byte("x"), false)
			require.ErrorIs(t, err, mqtt.ErrPublishSuppressed)
		})
	}
}

// gatedProxy forwards connections to target only after release is closed.
func gatedProxy(t *testing.T, target string, release <-chan struct{}) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			in, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer in.Close()
				<-release
				out, err := net.Dial("tcp", target)
				if err != nil {
					return
				}
				defer out.Close()
				go func() { _, _ = io.Copy(out, in) }()
				_, _ = io.Copy(in, out)
			}()
		}
	}()
	return "tcp://" + ln.Addr().String()
}

func TestV3ConnectTimeoutAbortsHandshake(t *testing.T) {
	broker := startBroker(t, 18860, false)
	release := make(chan struct{})
	proxy := gatedProxy(t, strings.TrimPrefix(broker, "tcp://"), release)

	client := mqtt.NewV3Client(mqtt.Options{
		Broker:         proxy,
		ClientID:       "slow-handshake",
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
	})
	t.Cleanup(client.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := client.Connect(ctx, mqtt.Handlers{})
	var ce *mqtt.ConnectionError
	require.True(t, errors.As(err, &ce), "expected ConnectionError, got %v", err)

	// The broker now answers the pending handshake.
	close(release)
	require.Never(t, client.IsConnected, 500*time.Millisecond, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Connect(ctx, mqtt.Handlers{}) == nil
	}, 10*time.Second, 100*time.Millisecond)
	require.True(t, client.IsConnected())
}
