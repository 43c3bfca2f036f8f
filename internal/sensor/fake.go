package sensor

import (
	"errors"
	"sync"
)

// FakeBus is a test double returning scripted conversions per channel.
type FakeBus struct {
	mu     sync.Mutex
	values map[byte][]int
	errs   map[byte]int

	// Err, if set, fails every read.
	Err error

	Closed bool
}

// NewFakeBus creates an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{values: make(map[byte][]int), errs: make(map[byte]int)}
}

// Script queues conversions for a channel. The last one repeats.
func (f *FakeBus) Script(control byte, values ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[control] = append([]int(nil), values...)
}

// FailNext makes the next n reads of a channel fail.
func (f *FakeBus) FailNext(control byte, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[control] = n
}

// ReadChannel returns the next scripted conversion.
func (f *FakeBus) ReadChannel(control byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return 0, f.Err
	}
	if f.errs[control] > 0 {
		f.errs[control]--
		return 0, errors.New("simulated bus error")
	}
	vals := f.values[control]
	if len(vals) == 0 {
		return 0, errors.New("no values configured")
	}
	v := vals[0]
	if len(vals) > 1 {
		f.values[control] = vals[1:]
	}
	return v, nil
}

// Close marks the bus closed.
func (f *FakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
