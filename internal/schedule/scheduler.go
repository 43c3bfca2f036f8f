// Package schedule runs the automatic door and light schedule.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/sensor"
	"github.com/sweeney/coop-controller/internal/solar"
)

// Door is the part of the door controller the scheduler drives.
type Door interface {
	Open() door.MoveResult
	Close() door.MoveResult
	IsOpen() bool
	IsClosed() bool
}

// Lights is the part of the light controller the scheduler drives.
type Lights interface {
	SwitchIndoor(on bool) error
}

// SensorReader samples the analog sensors.
type SensorReader interface {
	Read() sensor.Reading
}

// Notifier is told about every door action the scheduler takes.
type Notifier interface {
	NotifyDoorAction(action solar.Action, now, open, close time.Time)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(action solar.Action, now, open, close time.Time)

// NotifyDoorAction calls f.
func (f NotifierFunc) NotifyDoorAction(action solar.Action, now, open, close time.Time) {
	f(action, now, open, close)
}

// Options configures the scheduler intervals.
type Options struct {
	SunriseInterval   time.Duration
	DoorCheckInterval time.Duration
	AutomaticOffTime  time.Duration
	// LightOnBeforeClosing switches the indoor light on ahead of closing.
	// Zero disables the light window.
	LightOnBeforeClosing time.Duration
	LightOffAfterClosing time.Duration
	SensorInterval       time.Duration
}

// LightWindow is the span during which the indoor light is kept on
// around closing time.
type LightWindow struct {
	On  time.Time `json:"on"`
	Off time.Time `json:"off"`
}

// Scheduler decides when the door opens and closes.
type Scheduler struct {
	calc    solar.Calculator
	door    Door
	lights  Lights
	sensors SensorReader
	opts    Options
	log     *logging.Logger
	now     func() time.Time
	wake    chan struct{}

	mu            sync.Mutex
	mode          Mode
	window        solar.Window
	next          [2]solar.Event
	lastSunCalc   time.Time
	lastDoorCheck time.Time
	lastSensor    time.Time
	lightWindow   *LightWindow
	lightOn       bool
	reading       sensor.Reading

	obsMu     sync.Mutex
	notifiers []Notifier
	onChange  []func()
	onReading []func(sensor.Reading)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSensors enables periodic sensor sampling.
func WithSensors(r SensorReader) Option {
	return func(s *Scheduler) { s.sensors = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.log = l.With("component", "schedule") }
}

// New creates a Scheduler in automatic mode.
func New(calc solar.Calculator, d Door, lights Lights, opts Options, options ...Option) *Scheduler {
	s := &Scheduler{
		calc:   calc,
		door:   d,
		lights: lights,
		opts:   opts,
		log:    logging.Discard(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// AddNotifier registers n for scheduler-driven door actions.
func (s *Scheduler) AddNotifier(n Notifier) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// OnChange registers fn to be called when mode, window or readings change.
func (s *Scheduler) OnChange(fn func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnReading registers fn to be called with every sensor reading.
func (s *Scheduler) OnReading(fn func(sensor.Reading)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onReading = append(s.onReading, fn)
}

// Run cycles until ctx is cancelled. Between cycles it sleeps for the door
// check interval or until WakeUp is called.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", "door_check_interval", s.opts.DoorCheckInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		s.Cycle(s.now())
		timer.Reset(s.opts.DoorCheckInterval)
	}
}

// WakeUp makes Run cycle immediately.
func (s *Scheduler) WakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cycle runs one scheduling pass at now.
func (s *Scheduler) Cycle(now time.Time) {
	changed := s.refreshWindow(now)
	if s.reenable(now) {
		changed = true
	}

	s.mu.Lock()
	automatic := s.mode.Automatic()
	window := s.window
	checkDoor := automatic && (s.lastDoorCheck.IsZero() || now.Sub(s.lastDoorCheck) >= s.opts.DoorCheckInterval)
	if checkDoor {
		s.lastDoorCheck = now
	}
	s.mu.Unlock()

	if changed {
		s.changed()
	}
	if checkDoor {
		s.checkDoor(now, window)
	}
	if automatic {
		s.checkLight(now, window)
	}
	s.sample(now)
}

// refreshWindow recomputes the door window when it is stale or the date
// has changed, and the next actions on every pass.
func (s *Scheduler) refreshWindow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	stale := s.lastSunCalc.IsZero() || now.Sub(s.lastSunCalc) >= s.opts.SunriseInterval ||
		!sameDay(now, s.lastSunCalc, s.calc.Location)
	if stale {
		w := s.calc.DoorTimes(now)
		if !w.Open.Equal(s.window.Open) || !w.Close.Equal(s.window.Close) {
			s.window = w
			changed = true
			s.log.Info("door times calculated", "open", w.Open.Format(time.RFC3339), "close", w.Close.Format(time.RFC3339))
		}
		s.lastSunCalc = now
	}

	next := s.calc.NextActions(now, s.window)
	if !sameEvents(next, s.next) {
		s.next = next
		changed = true
	}
	return changed
}

func (s *Scheduler) reenable(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind != TemporarilyOff || now.Before(s.mode.ReenableAt) {
		return false
	}
	s.mode = Mode{Kind: On}
	s.log.Info("automatic mode re-enabled")
	return true
}

func (s *Scheduler) checkDoor(now time.Time, w solar.Window) {
	action := solar.DoorAction(now, w)

	var result door.MoveResult
	switch action {
	case solar.ActionOpen:
		if s.door.IsOpen() {
			return
		}
		s.log.Info("opening door", "open", w.Open.Format(time.RFC3339))
		result = s.door.Open()
	default:
		if s.door.IsClosed() {
			return
		}
		s.log.Info("closing door", "close", w.Close.Format(time.RFC3339))
		result = s.door.Close()
	}

	if !result.Moved() {
		s.log.Warn("scheduled door action did not complete", "action", action, "result", result)
		return
	}

	s.obsMu.Lock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.obsMu.Unlock()
	for _, n := range notifiers {
		s.safely(func() { n.NotifyDoorAction(action, now, w.Open, w.Close) })
	}
}

func (s *Scheduler) checkLight(now time.Time, w solar.Window) {
	if s.opts.LightOnBeforeClosing <= 0 || s.lights == nil {
		return
	}

	s.mu.Lock()
	lw := s.lightWindow
	// an armed window is kept while now is near it so a recalculated close
	// time cannot cut the light event short
	near := lw != nil &&
		!now.Before(lw.On.Add(-s.opts.DoorCheckInterval)) &&
		!now.After(lw.Off.Add(s.opts.DoorCheckInterval))
	if !near {
		lw = &LightWindow{
			On:  w.Close.Add(-s.opts.LightOnBeforeClosing),
			Off: w.Close.Add(s.opts.LightOffAfterClosing),
		}
		s.lightWindow = lw
	}

	// the flag follows the relay only after a successful switch, so a failed
	// write is retried on the next cycle
	inWindow := !now.Before(lw.On) && now.Before(lw.Off)
	passed := !now.Before(lw.Off)
	switchTo := inWindow
	if inWindow == s.lightOn {
		if passed {
			s.lightWindow = nil
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Info("switching indoor light for closing", "on", switchTo)
	if err := s.lights.SwitchIndoor(switchTo); err != nil {
		s.log.Error("switching indoor light failed", "on", switchTo, "error", err)
		return
	}

	s.mu.Lock()
	s.lightOn = switchTo
	if passed && s.lightWindow == lw {
		s.lightWindow = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) sample(now time.Time) {
	if s.sensors == nil {
		return
	}
	s.mu.Lock()
	due := s.lastSensor.IsZero() || now.Sub(s.lastSensor) >= s.opts.SensorInterval
	if due {
		s.lastSensor = now
	}
	s.mu.Unlock()
	if !due {
		return
	}

	r := s.sensors.Read()
	s.mu.Lock()
	s.reading = r
	s.mu.Unlock()

	s.log.Debug("sensors sampled", "light", r.Light, "temperature", r.Temperature)

	s.obsMu.Lock()
	fns := append([]func(sensor.Reading){}, s.onReading...)
	s.obsMu.Unlock()
	for _, fn := range fns {
		s.safely(func() { fn(r) })
	}
	s.changed()
}

// DisableAutomatic suspends automatic control. Without forever the
// scheduler resumes after the automatic off time; a permanent suspension
// is never shortened.
func (s *Scheduler) DisableAutomatic(forever bool) {
	s.mu.Lock()
	switch {
	case forever:
		s.mode = Mode{Kind: PermanentlyOff}
	case s.mode.Kind == PermanentlyOff:
		s.mu.Unlock()
		return
	default:
		s.mode = Mode{Kind: TemporarilyOff, ReenableAt: s.now().Add(s.opts.AutomaticOffTime)}
	}
	mode := s.mode
	s.mu.Unlock()

	s.log.Info("automatic mode suspended", "mode", mode.String())
	s.changed()
}

// EnableAutomatic resumes automatic control and checks the door at once.
func (s *Scheduler) EnableAutomatic() {
	s.mu.Lock()
	s.mode = Mode{Kind: On}
	s.mu.Unlock()

	s.log.Info("automatic mode enabled")
	s.ResetCheckTimes()
	s.changed()
	s.WakeUp()
}

// SetAutomatic applies a requested mode.
func (s *Scheduler) SetAutomatic(setting Setting) {
	switch setting {
	case SettingOn:
		s.EnableAutomatic()
	case SettingOff:
		s.DisableAutomatic(false)
	case SettingDisabled:
		s.DisableAutomatic(true)
	}
}

// ResetCheckTimes forces the next cycle to recompute the door window and
// check the door.
func (s *Scheduler) ResetCheckTimes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSunCalc = time.Time{}
	s.lastDoorCheck = time.Time{}
}

// Mode returns the automatic mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Window returns today's door window.
func (s *Scheduler) Window() solar.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// NextActions returns the next two door actions.
func (s *Scheduler) NextActions() [2]solar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// NextAction returns the first door action still in the future. ok is
// false when none is known yet.
func (s *Scheduler) NextAction() (next solar.Event, ok bool) {
	now := s.now()
	for _, e := range s.NextActions() {
		if e.At.After(now) {
			return e, true
		}
	}
	return solar.Event{}, false
}

// LightWindow returns the armed light window, if any.
func (s *Scheduler) LightWindow() (LightWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lightWindow == nil {
		return LightWindow{}, false
	}
	return *s.lightWindow, true
}

// Reading returns the latest sensor reading.
func (s *Scheduler) Reading() sensor.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading
}

func (s *Scheduler) changed() {
	s.obsMu.Lock()
	fns := append([]func(){}, s.onChange...)
	s.obsMu.Unlock()
	for _, fn := range fns {
		s.safely(fn)
	}
}

func (s *Scheduler) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("schedule observer panicked", "panic", r)
		}
	}()
	fn()
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func sameEvents(a, b [2]solar.Event) bool {
	for i := range a {
		if a[i].Action != b[i].Action || !a[i].At.Equal(b[i].At) {
			return false
		}
	}
	return true
}
