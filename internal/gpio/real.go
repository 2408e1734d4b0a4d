//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// RealIndicator drives three LEDs through the Linux GPIO character device.
type RealIndicator struct {
	chip   *gpiocdev.Chip
	red    *gpiocdev.Line
	yellow *gpiocdev.Line
	green  *gpiocdev.Line
}

// NewRealIndicator requests the three lines as outputs, initially low.
func NewRealIndicator(pins Pins) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealIndicator{chip: chip}
	lines := []struct {
		name string
		pin  int
		dst  **gpiocdev.Line
	}{
		{"red", pins.Red, &r.red},
		{"yellow", pins.Yellow, &r.yellow},
		{"green", pins.Green, &r.green},
	}
	for _, l := range lines {
		line, err := chip.RequestLine(l.pin, gpiocdev.AsOutput(0))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", l.name, l.pin, err)
		}
		*l.dst = line
	}

	return r, nil
}

// Show sets the three lines for color.
func (r *RealIndicator) Show(color logic.Color) error {
	red, yellow, green := levels(color)
	if err := r.red.SetValue(red); err != nil {
		return fmt.Errorf("set red pin: %w", err)
	}
	if err := r.yellow.SetValue(yellow); err != nil {
		return fmt.Errorf("set yellow pin: %w", err)
	}
	if err := r.green.SetValue(green); err != nil {
		return fmt.Errorf("set green pin: %w", err)
	}
	return nil
}

// Close turns every lamp off, then reconfigures the lines as inputs
// (the Pi boot default) before releasing them.
func (r *RealIndicator) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{r.red, r.yellow, r.green} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pin: %w", err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
