// Command dht-sensor samples the DHT sensor, publishes temperature and
// humidity, and lights the tri-color indicator for the temperature zone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sweeney/dht-telemetry/internal/config"
	"github.com/sweeney/dht-telemetry/internal/daemon"
)

const role = "device"

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	level, _ := config.ParseLogLevel(cfg.Logging.Level)
	logger := config.SetupLogger(level, os.Stderr)

	ctx, stop := daemon.SignalContext(context.Background())
	defer stop()

	if err := daemon.Run(ctx, cfg, logger, daemon.Deps{}); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("dht-sensor", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	overrides := config.RegisterFlags(fs, role)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return config.Load(*configPath, role, overrides())
}
