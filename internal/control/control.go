// Package control is the command surface of the coop controller: the
// operations remote clients and the touch display call. Manual door and
// light commands suspend automatic control.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/light"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/status"
)

// Controller ties the door, lights and scheduler to the state hub.
type Controller struct {
	door   *door.Controller
	lights *light.Controller
	sched  *schedule.Scheduler
	hub    *status.Tracker
	log    *logging.Logger

	pubMu sync.Mutex
}

// New creates a Controller, registers it as observer of every component and
// publishes the initial snapshot.
func New(d *door.Controller, l *light.Controller, s *schedule.Scheduler, hub *status.Tracker, log *logging.Logger) *Controller {
	c := &Controller{
		door:   d,
		lights: l,
		sched:  s,
		hub:    hub,
		log:    log.With("component", "control"),
	}
	d.OnChange(c.publish)
	l.OnChange(c.publish)
	s.OnChange(c.publish)
	c.publish()
	return c
}

// OpenDoor suspends automatic control and opens the door. It blocks until
// the motion ends and reports whether the door moved.
func (c *Controller) OpenDoor() door.MoveResult {
	c.log.Info("open door requested")
	c.sched.DisableAutomatic(false)
	return c.door.Open()
}

// CloseDoor suspends automatic control and closes the door.
func (c *Controller) CloseDoor() door.MoveResult {
	c.log.Info("close door requested")
	c.sched.DisableAutomatic(false)
	return c.door.Close()
}

// StopDoor stops any motion and suspends automatic control.
func (c *Controller) StopDoor() {
	c.log.Info("stop door requested")
	c.door.Stop()
	c.sched.DisableAutomatic(false)
}

// IsDoorOpen reports whether the door is open.
func (c *Controller) IsDoorOpen() bool { return c.door.IsOpen() }

// IsDoorClosed reports whether the door is closed.
func (c *Controller) IsDoorClosed() bool { return c.door.IsClosed() }

// SwitchIndoorLight suspends automatic control and switches the indoor light.
func (c *Controller) SwitchIndoorLight(on bool) error {
	return c.switchLight(light.Indoor, on)
}

// SwitchOutdoorLight suspends automatic control and switches the outdoor light.
func (c *Controller) SwitchOutdoorLight(on bool) error {
	return c.switchLight(light.Outdoor, on)
}

func (c *Controller) switchLight(ch light.Channel, on bool) error {
	c.log.Info("light switch requested", "channel", ch, "on", on)
	c.sched.DisableAutomatic(false)
	return c.lights.Switch(ch, on)
}

// SwitchDoorAutomatic applies the requested automatic mode and returns the
// resulting mode.
func (c *Controller) SwitchDoorAutomatic(setting schedule.Setting) schedule.Mode {
	c.sched.SetAutomatic(setting)
	return c.sched.Mode()
}

// GetState returns the latest snapshot.
func (c *Controller) GetState() status.Snapshot {
	return c.hub.Snapshot()
}

// WaitForStateChange blocks until the state changes or timeout elapses.
func (c *Controller) WaitForStateChange(ctx context.Context, timeout time.Duration) (bool, status.Snapshot) {
	return c.hub.WaitForChange(ctx, timeout)
}

// GetNextAction returns the first scheduled door action still in the
// future. ok is false when none is known yet.
func (c *Controller) GetNextAction() (next solar.Event, ok bool) {
	return c.sched.NextAction()
}

// publish gathers the component state and hands it to the hub. pubMu keeps
// concurrent publishers from storing an older state over a newer one.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	pos := c.door.Position()
	indoor := c.lights.IndoorOn()
	outdoor := c.lights.OutdoorOn()
	mode := c.sched.Mode()
	window := c.sched.Window()
	next := c.sched.NextActions()
	reading := c.sched.Reading()

	var lightWindow *schedule.LightWindow
	if lw, ok := c.sched.LightWindow(); ok {
		lightWindow = &lw
	}

	c.hub.Publish(func(s *status.Snapshot) {
		s.Door = pos
		s.IndoorLight = indoor
		s.OutdoorLight = outdoor
		s.Automatic = mode
		s.Window = window
		s.NextActions = next
		s.LightWindow = lightWindow
		s.Sensors = status.Sensors{Light: reading.Light, Temperature: reading.Temperature}
		s.SensorsAt = reading.Time
	})
	c.log.Debug("state published", "door", pos, "automatic", mode.String())
}
