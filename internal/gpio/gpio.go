// Package gpio drives the tri-color temperature indicator.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"log/slog"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// Indicator lights exactly one lamp, or none.
type Indicator interface {
	// Show lights the lamp for color and turns the others off.
	// ColorOff turns every lamp off.
	Show(color logic.Color) error

	// Close turns the lamps off and releases resources.
	Close() error
}

// Pin definitions (BCM numbering), matching the sensor board wiring.
const (
	DefaultPinRed    = 18
	DefaultPinYellow = 19
	DefaultPinGreen  = 20
)

// Pins selects the output line for each lamp.
type Pins struct {
	Red    int `yaml:"red"`
	Yellow int `yaml:"yellow"`
	Green  int `yaml:"green"`
}

// DefaultPins returns the stock wiring.
func DefaultPins() Pins {
	return Pins{Red: DefaultPinRed, Yellow: DefaultPinYellow, Green: DefaultPinGreen}
}

// levels returns the output value of the red, yellow and green lines for color.
func levels(color logic.Color) (red, yellow, green int) {
	switch color {
	case logic.ColorRed:
		return 1, 0, 0
	case logic.ColorYellow:
		return 0, 1, 0
	case logic.ColorGreen:
		return 0, 0, 1
	}
	return 0, 0, 0
}

// LogIndicator stands in for hardware by logging every change.
type LogIndicator struct {
	Logger *slog.Logger
	last   logic.Color
}

// Show logs color when it differs from the previous one.
func (l *LogIndicator) Show(color logic.Color) error {
	if color != l.last && l.Logger != nil {
		l.Logger.Info("indicator", "color", string(color))
	}
	l.last = color
	return nil
}

// Close is a no-op.
func (l *LogIndicator) Close() error {
	return nil
}
