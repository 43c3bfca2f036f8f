// Package status holds the latest view of the coop controller state and
// lets observers wait for changes instead of polling the hardware.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
)

// Config contains controller configuration for display.
type Config struct {
	Broker   string
	HTTPAddr string
	Latitude float64
	Timezone string
}

// Sensors are the latest analog readings. Nil means no value.
type Sensors struct {
	Light       *float64
	Temperature *float64
}

// Snapshot is a point-in-time view of controller state.
// Snapshots handed out by a Tracker share no memory with it.
type Snapshot struct {
	// Seq increases with every published change.
	Seq uint64

	Door         door.Position
	IndoorLight  bool
	OutdoorLight bool
	Automatic    schedule.Mode
	Window       solar.Window
	NextActions  [2]solar.Event
	LightWindow  *schedule.LightWindow
	Sensors      Sensors
	SensorsAt    time.Time

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker is the state hub: the latest snapshot plus a has-unseen-change
// latch, guarded together.
type Tracker struct {
	mu      sync.Mutex
	snap    Snapshot
	pending bool
	// changed is closed and replaced on every Publish.
	changed chan struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		changed: make(chan struct{}),
	}
}

// Publish applies update to the snapshot, sets the change latch and wakes
// every waiter.
func (t *Tracker) Publish(update func(*Snapshot)) {
	t.mu.Lock()
	update(&t.snap)
	t.snap.Seq++
	t.pending = true
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status. It is not a change
// observers wait for.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	s := t.copyLocked()
	t.mu.Unlock()
	s.Now = time.Now()
	return s
}

// Changed returns a channel that is closed on the next Publish. Unlike
// WaitForChange it does not consume the change latch, so forwarders can
// follow every change without stealing it from RPC waiters.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

// WaitForChange blocks until a change is published, timeout elapses or
// ctx is done. It returns true with the snapshot if it consumed a change.
// A change pending on entry is consumed at once. All waiters wake on a
// publish but only the first consumes it; the others return false.
func (t *Tracker) WaitForChange(ctx context.Context, timeout time.Duration) (bool, Snapshot) {
	t.mu.Lock()
	if t.pending {
		t.pending = false
		s := t.copyLocked()
		t.mu.Unlock()
		s.Now = time.Now()
		return true, s
	}
	ch := t.changed
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
		return false, t.Snapshot()
	case <-ctx.Done():
		return false, t.Snapshot()
	}

	t.mu.Lock()
	consumed := t.pending
	t.pending = false
	s := t.copyLocked()
	t.mu.Unlock()
	s.Now = time.Now()
	return consumed, s
}

// copyLocked returns a snapshot that shares no pointers with t.snap.
// Caller must hold t.mu.
func (t *Tracker) copyLocked() Snapshot {
	s := t.snap
	s.Sensors = Sensors{}
	if err := deepcopy.Copy(&s.Sensors, &t.snap.Sensors); err != nil {
		s.Sensors = Sensors{}
	}
	if t.snap.LightWindow != nil {
		lw := *t.snap.LightWindow
		s.LightWindow = &lw
	}
	return s
}
