package mqtt

import "sync"

// FakePublisher records published events for test assertions.
// It is safe for concurrent use; read the recorded slices through the
// accessor methods while publishers may still be running.
type FakePublisher struct {
	mu sync.Mutex

	// DoorEvents contains all door actions that were published.
	DoorEvents []DoorEvent

	// Payloads contains the JSON payloads of the door actions.
	Payloads [][]byte

	// States contains the retained state payloads.
	States [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishDoorAction and PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishDoorAction records the door event.
func (f *FakePublisher) PublishDoorAction(event DoorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.DoorEvents = append(f.DoorEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishState records the state payload.
func (f *FakePublisher) PublishState(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.States = append(f.States, append([]byte(nil), payload...))
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// StateCount returns the number of state payloads recorded.
func (f *FakePublisher) StateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.States)
}

// LastState returns the most recent state payload, or nil.
func (f *FakePublisher) LastState() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.States) == 0 {
		return nil
	}
	return f.States[len(f.States)-1]
}

// DoorEventCount returns the number of door actions recorded.
func (f *FakePublisher) DoorEventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DoorEvents)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DoorEvents = nil
	f.Payloads = nil
	f.States = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
