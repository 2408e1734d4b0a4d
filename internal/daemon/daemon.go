// Package daemon wires the supervisor, the status server and, for the
// device role, the sensor loop into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/dht-telemetry/internal/config"
	"github.com/sweeney/dht-telemetry/internal/gpio"
	"github.com/sweeney/dht-telemetry/internal/history"
	"github.com/sweeney/dht-telemetry/internal/mqtt"
	"github.com/sweeney/dht-telemetry/internal/sensor"
	"github.com/sweeney/dht-telemetry/internal/status"
	"github.com/sweeney/dht-telemetry/internal/supervisor"
	"github.com/sweeney/dht-telemetry/internal/web"
)

const shutdownTimeout = 5 * time.Second

// Deps overrides the collaborators Run would otherwise build from the
// config. Every field is optional.
type Deps struct {
	Client    mqtt.Client
	Indicator gpio.Indicator
	Source    sensor.Source
	Tick      <-chan time.Time // sensor read ticks
	Listener  net.Listener     // status server listener
	Network   func() *status.NetworkInfo
	Now       func() time.Time

	// Ready, if set, receives the supervisor once it is built.
	Ready func(*supervisor.Supervisor)
}

// Run starts the daemon described by cfg and blocks until ctx is done and
// every component has stopped. A StopReason cause on ctx is reported in
// the SHUTDOWN event.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	role, err := supervisor.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	network := deps.Network
	if network == nil {
		network = ReadNetworkInfo
	}

	client := deps.Client
	if client == nil {
		client, err = mqtt.NewClient(cfg.MQTT.Protocol, cfg.MQTTOptions(now()))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
	}

	indicator := deps.Indicator
	if indicator == nil && role == supervisor.RoleDevice {
		indicator = openIndicator(cfg, logger)
	}
	if indicator != nil {
		defer func() {
			if err := indicator.Close(); err != nil {
				logger.Warn("close indicator", "error", err)
			}
		}()
	}

	store := history.NewStore(cfg.History.Capacity)
	tracker := status.NewTracker(now(), cfg.StatusConfig())

	var notify func()
	sup := supervisor.New(client, supervisor.Options{
		Role:           role,
		Topics:         cfg.Topics,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		Backoff:        cfg.Backoff(logger.With("component", "retry")),
		Heartbeat:      cfg.Heartbeat,
		Store:          store,
		Tracker:        tracker,
		Indicator:      indicator,
		Network:        network,
		OnChange: func() {
			if notify != nil {
				notify()
			}
		},
		Logger: logger,
		Now:    now,
	})
	if deps.Ready != nil {
		deps.Ready(sup)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" || deps.Listener != nil {
		var control web.Controller
		if role == supervisor.RoleDashboard {
			control = sup
		}
		srv := web.New(cfg.HTTP.Addr, tracker, store, control, logger.With("component", "http"))
		notify = srv.Hub().Notify

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			var err error
			if deps.Listener != nil {
				err = srv.Serve(deps.Listener)
			} else {
				logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		return sup.Run(gctx)
	})

	if role == supervisor.RoleDevice {
		src := deps.Source
		if src == nil {
			seed := cfg.Device.Seed
			if seed == 0 {
				seed = now().UnixNano()
			}
			src = sensor.NewSimulator(seed)
		}
		tick := deps.Tick
		if tick == nil {
			ticker := time.NewTicker(cfg.Device.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		g.Go(func() error {
			return sensor.Run(gctx, src, tick, sup, logger.With("component", "sensor"))
		})
	}

	logger.Info("started",
		"role", cfg.Role,
		"broker", cfg.MQTT.Broker,
		"protocol", cfg.MQTT.Protocol,
		"client_id", cfg.ClientID(),
		"heartbeat", cfg.Heartbeat)

	return g.Wait()
}

// openIndicator falls back to logging when the GPIO lines are unavailable.
func openIndicator(cfg config.Config, logger *slog.Logger) gpio.Indicator {
	fallback := &gpio.LogIndicator{Logger: logger.With("component", "indicator")}
	if !cfg.Device.GPIO {
		return fallback
	}
	ind, err := gpio.NewRealIndicator(cfg.Device.Pins)
	if err != nil {
		logger.Warn("gpio unavailable, logging indicator changes", "error", err)
		return fallback
	}
	return ind
}

// SignalContext returns a context canceled on SIGINT or SIGTERM, with the
// signal name as a supervisor.StopReason cause.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sigCh:
			cancel(supervisor.StopReason(SignalName(s)))
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, func() { cancel(context.Canceled) }
}

// SignalName maps a shutdown signal to its SHUTDOWN reason.
func SignalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// ReadNetworkInfo returns the network state published by pi-helper, or nil
// when NETWORK_STATUS is unset.
func ReadNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
