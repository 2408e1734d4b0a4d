package gpio

import (
	"sync"

	"github.com/sweeney/dht-telemetry/internal/logic"
)

// FakeIndicator records every color shown.
// It is safe for concurrent use.
type FakeIndicator struct {
	mu     sync.Mutex
	shown  []logic.Color
	closed bool

	// ShowError, if set, will be returned by Show.
	ShowError error
}

// NewFakeIndicator creates a FakeIndicator with nothing shown.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Show records color.
func (f *FakeIndicator) Show(color logic.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShowError != nil {
		return f.ShowError
	}
	f.shown = append(f.shown, color)
	return nil
}

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Shown returns every recorded color in order.
func (f *FakeIndicator) Shown() []logic.Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Color(nil), f.shown...)
}

// Current returns the last color shown, or ColorOff if none.
func (f *FakeIndicator) Current() logic.Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.shown) == 0 {
		return logic.ColorOff
	}
	return f.shown[len(f.shown)-1]
}

// Closed reports whether Close was called.
func (f *FakeIndicator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded colors.
func (f *FakeIndicator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = nil
	f.closed = false
}
