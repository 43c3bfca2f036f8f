package gpio

import (
	"errors"
	"sync"
)

// Write records a single Set call on a FakeBoard.
type Write struct {
	Line  Line
	Value int
}

// FakeBoard is a test double that returns scripted input levels and
// records relay writes. It is safe for concurrent use.
type FakeBoard struct {
	mu sync.Mutex

	levels  map[Line]int
	scripts map[Line][]int
	writes  []Write
	closed  bool

	// ReadError, if set, will be returned by Get().
	ReadError error

	// OnSet, if set, is called after every Set with the lock released.
	// Tests use it to simulate the door reaching a contact.
	OnSet func(line Line, value int)
}

// NewFakeBoard creates a FakeBoard with every line at level 1: relays
// de-energized and contacts open for the default active-low wiring.
func NewFakeBoard() *FakeBoard {
	f := &FakeBoard{
		levels:  make(map[Line]int),
		scripts: make(map[Line][]int),
	}
	for line := LineMotor; line <= LineButton; line++ {
		f.levels[line] = 1
	}
	return f
}

// SetInput sets the steady level of an input line and discards any script.
func (f *FakeBoard) SetInput(line Line, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[line] = value
	delete(f.scripts, line)
}

// Script queues levels for an input line. Each Get consumes one; once the
// script is exhausted the last level repeats.
func (f *FakeBoard) Script(line Line, values ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[line] = append([]int(nil), values...)
}

// Get returns the next scripted level, or the steady level.
func (f *FakeBoard) Get(line Line) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errors.New("board closed")
	}
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if script := f.scripts[line]; len(script) > 0 {
		v := script[0]
		if len(script) > 1 {
			f.scripts[line] = script[1:]
		} else {
			delete(f.scripts, line)
			f.levels[line] = v
		}
		return v, nil
	}
	return f.levels[line], nil
}

// Set records the write and updates the line level.
func (f *FakeBoard) Set(line Line, value int) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("board closed")
	}
	if !line.IsOutput() {
		f.mu.Unlock()
		return errors.New("not an output line")
	}
	f.levels[line] = value
	f.writes = append(f.writes, Write{Line: line, Value: value})
	hook := f.OnSet
	f.mu.Unlock()

	if hook != nil {
		hook(line, value)
	}
	return nil
}

// Level returns the current level of a line without consuming a script.
func (f *FakeBoard) Level(line Line) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[line]
}

// Writes returns a copy of all recorded writes.
func (f *FakeBoard) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// ClearWrites forgets recorded writes.
func (f *FakeBoard) ClearWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeBoard) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
