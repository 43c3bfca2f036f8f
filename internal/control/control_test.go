package control

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/light"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/status"
	"github.com/sweeney/coop-controller/internal/store"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	board  *gpio.FakeBoard
	state  *store.File
	clock  *manualClock
	lights *light.Controller
	sched  *schedule.Scheduler
	hub    *status.Tracker
	ctl    *Controller
}

func berlin(t *testing.T, hhmm string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", "2018-01-01 "+hhmm, loc)
	if err != nil {
		t.Fatalf("parse %s: %v", hhmm, err)
	}
	return ts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	board := gpio.NewFakeBoard()
	state := store.New(filepath.Join(t.TempDir(), "board.json"))
	clock := &manualClock{t: berlin(t, "06:00")}

	d := door.New(board, state, door.Options{
		MoveUpTime:         time.Second,
		MoveDownTime:       time.Second,
		UpperContactOffset: 5 * time.Millisecond,
		LowerContactOffset: 5 * time.Millisecond,
		ContactSamples:     15,
		ContactThreshold:   5,
		SampleInterval:     time.Millisecond,
		Levels:             gpio.DefaultLevels,
	}, log)
	l := light.New(board, state, gpio.DefaultLevels, log)

	loc, _ := time.LoadLocation("Europe/Berlin")
	var earliest [7]time.Duration
	for i := range earliest {
		earliest[i] = 5*time.Hour + 30*time.Minute
	}
	calc := solar.Calculator{
		Latitude:     51.138904,
		Location:     loc,
		DawnOffset:   -30 * time.Minute,
		DuskOffset:   15 * time.Minute,
		EarliestOpen: earliest,
	}
	s := schedule.New(calc, d, l, schedule.Options{
		SunriseInterval:   7000 * time.Second,
		DoorCheckInterval: time.Minute,
		AutomaticOffTime:  30 * time.Minute,
		SensorInterval:    5 * time.Minute,
	}, schedule.WithClock(clock.Now))

	hub := status.NewTracker(clock.Now(), status.Config{})
	ctl := New(d, l, s, hub, log)

	f := &fixture{board: board, state: state, clock: clock, lights: l, sched: s, hub: hub, ctl: ctl}
	f.reachContacts()
	return f
}

// reachContacts makes the fake door hit the end contact as soon as the motor
// is powered in the given direction.
func (f *fixture) reachContacts() {
	f.board.OnSet = func(line gpio.Line, value int) {
		if line != gpio.LineMotor || value != gpio.DefaultLevels.RelayOn {
			return
		}
		if f.board.Level(gpio.LineDirection) == gpio.DefaultLevels.DirectionUp {
			f.board.SetInput(gpio.LineLowerReed, 1)
			f.board.SetInput(gpio.LineUpperReed, 0)
		} else {
			f.board.SetInput(gpio.LineUpperReed, 1)
			f.board.SetInput(gpio.LineLowerReed, 0)
		}
	}
}

// drain consumes the pending change, if any.
func (f *fixture) drain() {
	f.hub.WaitForChange(context.Background(), time.Millisecond)
}

func waitForDoor(t *testing.T, f *fixture, want door.Position) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.ctl.GetState().Door != want {
		if time.Now().After(deadline) {
			t.Fatalf("door: got %s, want %s", f.ctl.GetState().Door, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewPublishesInitialSnapshot(t *testing.T) {
	f := newFixture(t)

	changed, snap := f.ctl.WaitForStateChange(context.Background(), 10*time.Millisecond)
	if !changed {
		t.Error("expected the initial snapshot to count as a change")
	}
	if snap.Door != door.NotMoving {
		t.Errorf("door: got %s, want not_moving", snap.Door)
	}
	if snap.Automatic.Kind != schedule.On {
		t.Errorf("automatic: got %s, want on", snap.Automatic)
	}
	if snap.IndoorLight {
		t.Error("indoor light should start off")
	}
}

func TestOpenDoorSuspendsAutomatic(t *testing.T) {
	f := newFixture(t)

	if got := f.ctl.OpenDoor(); got != door.MoveCompleted {
		t.Fatalf("OpenDoor: got %v, want completed", got)
	}
	if !f.ctl.IsDoorOpen() || f.ctl.IsDoorClosed() {
		t.Errorf("IsDoorOpen=%v IsDoorClosed=%v, want open", f.ctl.IsDoorOpen(), f.ctl.IsDoorClosed())
	}

	snap := f.ctl.GetState()
	if snap.Door != door.Open {
		t.Errorf("door: got %s, want open", snap.Door)
	}
	if snap.Automatic.Kind != schedule.TemporarilyOff {
		t.Errorf("automatic: got %s, want temporarily_off", snap.Automatic)
	}
	if !snap.Automatic.ReenableAt.Equal(berlin(t, "06:30")) {
		t.Errorf("reenable at: got %s, want 06:30", snap.Automatic.ReenableAt)
	}
	if got := f.state.Current().Door; got != "open" {
		t.Errorf("persisted door: got %q, want open", got)
	}
}

func TestCloseDoorSuspendsAutomatic(t *testing.T) {
	f := newFixture(t)

	if got := f.ctl.CloseDoor(); got != door.MoveCompleted {
		t.Fatalf("CloseDoor: got %v, want completed", got)
	}
	if !f.ctl.IsDoorClosed() {
		t.Error("door should be closed")
	}
	if got := f.ctl.GetState().Automatic.Kind; got != schedule.TemporarilyOff {
		t.Errorf("automatic: got %s, want temporarily_off", got)
	}
}

func TestManualCloseReenablesAfterOffTime(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(berlin(t, "08:00"))
	if got := f.ctl.CloseDoor(); got != door.MoveCompleted {
		t.Fatalf("CloseDoor: got %v, want completed", got)
	}

	// during the suspension the scheduler leaves the door alone
	f.clock.Set(berlin(t, "08:10"))
	f.sched.Cycle(f.clock.Now())
	if !f.ctl.IsDoorClosed() {
		t.Error("scheduler moved the door while suspended")
	}

	f.clock.Set(berlin(t, "08:31"))
	f.sched.Cycle(f.clock.Now())

	snap := f.ctl.GetState()
	if snap.Automatic.Kind != schedule.On {
		t.Errorf("automatic: got %s, want on", snap.Automatic)
	}
	if snap.Door != door.Open {
		t.Errorf("door: got %s, want open inside the window", snap.Door)
	}
}

func TestStopDoorSuspendsAutomatic(t *testing.T) {
	f := newFixture(t)

	f.ctl.StopDoor()

	if got := f.ctl.GetState().Automatic.Kind; got != schedule.TemporarilyOff {
		t.Errorf("automatic: got %s, want temporarily_off", got)
	}
	if got := f.board.Level(gpio.LineMotor); got != gpio.DefaultLevels.RelayOff() {
		t.Errorf("motor relay: got %d, want off", got)
	}
}

func TestStopDoorDuringMotion(t *testing.T) {
	f := newFixture(t)
	f.board.OnSet = nil // no contact, the door would run into the timeout

	done := make(chan door.MoveResult, 1)
	go func() { done <- f.ctl.OpenDoor() }()

	waitForDoor(t, f, door.MovingUp)
	f.ctl.StopDoor()

	select {
	case r := <-done:
		if r != door.MoveStopped {
			t.Errorf("OpenDoor: got %v, want stopped", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OpenDoor did not return after StopDoor")
	}
	if got := f.ctl.GetState().Door; got != door.NotMoving {
		t.Errorf("door: got %s, want not_moving", got)
	}
}

func TestSwitchLights(t *testing.T) {
	f := newFixture(t)

	if err := f.ctl.SwitchIndoorLight(true); err != nil {
		t.Fatalf("SwitchIndoorLight: %v", err)
	}
	if err := f.ctl.SwitchOutdoorLight(true); err != nil {
		t.Fatalf("SwitchOutdoorLight: %v", err)
	}

	snap := f.ctl.GetState()
	if !snap.IndoorLight || !snap.OutdoorLight {
		t.Errorf("lights: got indoor=%v outdoor=%v, want both on", snap.IndoorLight, snap.OutdoorLight)
	}
	if snap.Automatic.Kind != schedule.TemporarilyOff {
		t.Errorf("automatic: got %s, want temporarily_off", snap.Automatic)
	}
	if got := f.board.Level(gpio.LineIndoorLight); got != gpio.DefaultLevels.RelayOn {
		t.Errorf("indoor relay: got %d, want on", got)
	}

	if err := f.ctl.SwitchIndoorLight(false); err != nil {
		t.Fatalf("SwitchIndoorLight: %v", err)
	}
	if f.ctl.GetState().IndoorLight {
		t.Error("indoor light should be off")
	}
	if !f.state.Current().OutdoorLight {
		t.Error("persisted outdoor light should be on")
	}
}

func TestConcurrentPublishKeepsLatestState(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				on := (i+j)%2 == 0
				if err := f.ctl.SwitchIndoorLight(on); err != nil {
					t.Errorf("SwitchIndoorLight: %v", err)
					return
				}
				if err := f.ctl.SwitchOutdoorLight(!on); err != nil {
					t.Errorf("SwitchOutdoorLight: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	snap := f.ctl.GetState()
	if snap.IndoorLight != f.lights.IndoorOn() {
		t.Errorf("indoor light: snapshot %v, controller %v", snap.IndoorLight, f.lights.IndoorOn())
	}
	if snap.OutdoorLight != f.lights.OutdoorOn() {
		t.Errorf("outdoor light: snapshot %v, controller %v", snap.OutdoorLight, f.lights.OutdoorOn())
	}
}

func TestSwitchDoorAutomatic(t *testing.T) {
	f := newFixture(t)

	if mode := f.ctl.SwitchDoorAutomatic(schedule.SettingDisabled); mode.Kind != schedule.PermanentlyOff {
		t.Errorf("disabled: got %s", mode)
	}

	// a manual command never shortens a permanent suspension
	f.ctl.OpenDoor()
	if got := f.ctl.GetState().Automatic.Kind; got != schedule.PermanentlyOff {
		t.Errorf("after manual open: got %s, want permanently_off", got)
	}

	if mode := f.ctl.SwitchDoorAutomatic(schedule.SettingOff); mode.Kind != schedule.PermanentlyOff {
		t.Errorf("off while disabled: got %s, want permanently_off", mode)
	}

	if mode := f.ctl.SwitchDoorAutomatic(schedule.SettingOn); mode.Kind != schedule.On {
		t.Errorf("on: got %s", mode)
	}
	if got := f.ctl.GetState().Automatic.Kind; got != schedule.On {
		t.Errorf("snapshot after on: got %s", got)
	}

	if mode := f.ctl.SwitchDoorAutomatic(schedule.SettingOff); mode.Kind != schedule.TemporarilyOff {
		t.Errorf("off: got %s, want temporarily_off", mode)
	}
}

func TestWaitForStateChangeSeesMotion(t *testing.T) {
	f := newFixture(t)
	f.drain()

	go f.ctl.OpenDoor()

	if changed, _ := f.ctl.WaitForStateChange(context.Background(), 2*time.Second); !changed {
		t.Error("expected a change while the door moves")
	}
	waitForDoor(t, f, door.Open)
}

func TestWaitForStateChangeTimeout(t *testing.T) {
	f := newFixture(t)
	f.drain()

	changed, snap := f.ctl.WaitForStateChange(context.Background(), 20*time.Millisecond)
	if changed {
		t.Error("expected no change")
	}
	if snap.Door != door.NotMoving {
		t.Errorf("door: got %s, want not_moving", snap.Door)
	}
}

func TestGetNextAction(t *testing.T) {
	f := newFixture(t)

	if _, ok := f.ctl.GetNextAction(); ok {
		t.Error("nothing should be scheduled before the first cycle")
	}

	f.sched.SetAutomatic(schedule.SettingDisabled)
	f.sched.Cycle(f.clock.Now())

	next, ok := f.ctl.GetNextAction()
	if !ok {
		t.Fatal("expected a next action after a cycle")
	}
	if next.Action != solar.ActionOpen {
		t.Errorf("action: got %v, want open", next.Action)
	}
	if !next.At.After(berlin(t, "07:00")) || !next.At.Before(berlin(t, "08:00")) {
		t.Errorf("next open at %s, want between 07:00 and 08:00", next.At)
	}

	snap := f.ctl.GetState()
	if !snap.NextActions[0].At.Equal(next.At) {
		t.Errorf("snapshot next action: got %s, want %s", snap.NextActions[0].At, next.At)
	}
	if snap.Window.Open.IsZero() {
		t.Error("snapshot window should be set")
	}

	// past both known actions without a new cycle
	f.clock.Set(berlin(t, "12:00").Add(24 * time.Hour))
	if _, ok := f.ctl.GetNextAction(); ok {
		t.Error("stale actions must not be reported")
	}
}
