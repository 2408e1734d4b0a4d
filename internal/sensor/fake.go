package sensor

import (
	"context"
	"errors"
	"sync"
)

// FakeSource is a test double that returns scripted readings.
type FakeSource struct {
	mu sync.Mutex

	// Readings are returned in order; once exhausted the last one repeats.
	Readings []Reading

	// ReadError, if set, will be returned by Read.
	ReadError error

	index int
	reads int
}

// NewFakeSource creates a FakeSource with the given readings.
func NewFakeSource(readings ...Reading) *FakeSource {
	return &FakeSource{Readings: readings}
}

// Read returns the next scripted reading.
func (f *FakeSource) Read(context.Context) (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return Reading{}, f.ReadError
	}
	if len(f.Readings) == 0 {
		return Reading{}, errors.New("no readings configured")
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r, nil
}

// Reads returns how many times Read was called.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
