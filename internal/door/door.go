package door

import (
	"sync"
	"time"

	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/store"
)

// Options configures motor timing and contact sampling.
type Options struct {
	MoveUpTime         time.Duration
	MoveDownTime       time.Duration
	UpperContactOffset time.Duration
	LowerContactOffset time.Duration
	ContactSamples     int
	ContactThreshold   int
	SampleInterval     time.Duration
	Levels             gpio.Levels
}

// Controller owns the motor relays and the reed contacts.
// Motion commands are serialized: a request while moving is rejected.
type Controller struct {
	board   gpio.Board
	state   *store.File
	opts    Options
	log     *logging.Logger
	contact sampler

	mu       sync.Mutex
	position Position
	// stop is non-nil while a motion is reserved or running.
	stop chan struct{}

	obsMu     sync.Mutex
	onChange  []func()
	onMoveEnd []func(MoveReport)
}

// New creates a Controller. The position is NotMoving until Restore.
func New(board gpio.Board, state *store.File, opts Options, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Discard()
	}
	return &Controller{
		board: board,
		state: state,
		opts:  opts,
		log:   log.With("component", "door"),
		contact: sampler{
			board:    board,
			closed:   opts.Levels.ContactClosed,
			samples:  opts.ContactSamples,
			need:     opts.ContactThreshold,
			interval: opts.SampleInterval,
		},
	}
}

// OnChange registers fn to be called after every position change.
func (c *Controller) OnChange(fn func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnMove registers fn to be called when a motion ends.
func (c *Controller) OnMove(fn func(MoveReport)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onMoveEnd = append(c.onMoveEnd, fn)
}

// Restore seeds the position at boot. The upper contact wins; otherwise a
// persisted Open is trusted; anything else is treated as Closed.
func (c *Controller) Restore(rec store.Record, loaded bool) Position {
	pos := Closed
	upper, _ := c.contact.read(gpio.LineUpperReed, nil, time.Time{})
	switch {
	case upper:
		pos = Open
	case loaded && rec.Door == Open.String():
		pos = Open
	}

	c.mu.Lock()
	c.position = pos
	c.persist()
	c.mu.Unlock()

	c.log.Info("door position restored", "position", pos, "persisted", rec.Door, "upper_contact", upper)
	c.changed()
	return pos
}

// Position returns the last known position without touching the hardware.
func (c *Controller) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// State returns the position with the live contacts taking precedence.
// When neither contact is asserted the last known position is returned.
// Both contacts asserted is a sensor fault and also yields the last known
// position.
func (c *Controller) State() Position {
	pos := c.Position()
	if pos.IsMoving() {
		return pos
	}

	upper, _ := c.contact.read(gpio.LineUpperReed, nil, time.Time{})
	lower, _ := c.contact.read(gpio.LineLowerReed, nil, time.Time{})
	switch {
	case upper && lower:
		c.log.Warn("both door contacts asserted, keeping last known position", "position", pos)
		return pos
	case upper:
		return Open
	case lower:
		return Closed
	default:
		return pos
	}
}

// IsOpen reports whether the door is open.
func (c *Controller) IsOpen() bool { return c.State() == Open }

// IsClosed reports whether the door is closed.
func (c *Controller) IsClosed() bool { return c.State() == Closed }

// Open raises the door and blocks until the motion ends.
func (c *Controller) Open() MoveResult { return c.move(Up) }

// Close lowers the door and blocks until the motion ends.
func (c *Controller) Close() MoveResult { return c.move(Down) }

func (c *Controller) move(dir Direction) MoveResult {
	target, moving, line := Open, MovingUp, gpio.LineUpperReed
	travel, offset := c.opts.MoveUpTime, c.opts.UpperContactOffset
	dirLevel := c.opts.Levels.DirectionUp
	if dir == Down {
		target, moving, line = Closed, MovingDown, gpio.LineLowerReed
		travel, offset = c.opts.MoveDownTime, c.opts.LowerContactOffset
		dirLevel = c.opts.Levels.DirectionDown()
	}

	c.mu.Lock()
	if c.stop != nil {
		pos := c.position
		c.mu.Unlock()
		c.log.Error("cannot move door, already moving", "direction", dir, "position", pos)
		return MoveRejected
	}
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	// a falsely asserted contact alone must not block the motion
	atTarget, stopped := c.contact.read(line, stop, time.Time{})
	if stopped {
		return MoveStopped
	}

	c.mu.Lock()
	if c.stop != stop {
		c.mu.Unlock()
		return MoveStopped
	}
	if atTarget && c.position == target {
		c.stop = nil
		c.mu.Unlock()
		c.log.Error("cannot move door, already at target", "direction", dir, "position", target)
		return MoveRejected
	}

	// direction must settle before the motor is powered
	if err := c.board.Set(gpio.LineDirection, dirLevel); err != nil {
		c.releaseLocked()
		c.stop = nil
		c.mu.Unlock()
		c.log.Error("switching direction relay failed", "direction", dir, "error", err)
		return MoveFailed
	}
	if err := c.board.Set(gpio.LineMotor, c.opts.Levels.RelayOn); err != nil {
		c.releaseLocked()
		c.stop = nil
		c.mu.Unlock()
		c.log.Error("switching motor relay failed", "direction", dir, "error", err)
		return MoveFailed
	}
	c.position = moving
	c.persist()
	c.mu.Unlock()

	started := time.Now()
	c.log.Info("door moving", "direction", dir)
	c.changed()

	result := c.travel(line, travel, offset, started, stop)
	if result == MoveStopped {
		c.log.Info("door motion stopped", "direction", dir, "elapsed", time.Since(started))
		c.moved(MoveReport{Direction: dir, Result: result, Started: started, Duration: time.Since(started)})
		return result
	}

	c.mu.Lock()
	if c.stop != stop {
		// Stop won the race after travel ended
		c.mu.Unlock()
		c.moved(MoveReport{Direction: dir, Result: MoveStopped, Started: started, Duration: time.Since(started)})
		return MoveStopped
	}
	c.stop = nil
	c.releaseLocked()
	c.position = target
	c.persist()
	c.mu.Unlock()

	elapsed := time.Since(started)
	if result == MoveTimedOut {
		c.log.Warn("door reached timeout without contact signal", "direction", dir, "position", target, "elapsed", elapsed)
	} else {
		c.log.Info("door reached contact", "direction", dir, "position", target, "elapsed", elapsed)
	}
	c.changed()
	c.moved(MoveReport{Direction: dir, Result: result, Started: started, Duration: elapsed})
	return result
}

// travel polls the end contact until it closes, the travel time is used up
// or the motion is stopped. After a contact signal the motor keeps running
// for offset to seat the door.
func (c *Controller) travel(line gpio.Line, max, offset time.Duration, started time.Time, stop <-chan struct{}) MoveResult {
	deadline := started.Add(max)
	for {
		closed, stopped := c.contact.read(line, stop, deadline)
		if stopped {
			return MoveStopped
		}
		if closed {
			if !sleep(offset, stop) {
				return MoveStopped
			}
			return MoveCompleted
		}
		if !time.Now().Before(deadline) {
			return MoveTimedOut
		}
		if !sleep(c.opts.SampleInterval, stop) {
			return MoveStopped
		}
	}
}

// Stop switches the motor off and resets the direction relay. It is safe to
// call at any time; an interrupted motion leaves the door NotMoving.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasMoving := c.stop != nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.releaseLocked()
	changed := false
	if wasMoving && c.position.IsMoving() {
		c.position = NotMoving
		c.persist()
		changed = true
	}
	c.mu.Unlock()

	if wasMoving {
		c.log.Info("door stopped")
	}
	if changed {
		c.changed()
	}
}

// releaseLocked powers the motor down and resets the direction relay.
// Caller must hold c.mu.
func (c *Controller) releaseLocked() {
	if err := c.board.Set(gpio.LineMotor, c.opts.Levels.RelayOff()); err != nil {
		c.log.Error("switching motor relay off failed", "error", err)
	}
	if err := c.board.Set(gpio.LineDirection, c.opts.Levels.DirectionUp); err != nil {
		c.log.Error("resetting direction relay failed", "error", err)
	}
}

// persist writes the position to the state file. Caller must hold c.mu.
func (c *Controller) persist() {
	if c.state == nil {
		return
	}
	pos := c.position.String()
	if err := c.state.Update(func(r *store.Record) { r.Door = pos }); err != nil {
		c.log.Error("persisting door position failed", "error", err)
	}
}

func (c *Controller) changed() {
	c.obsMu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.obsMu.Unlock()
	for _, fn := range fns {
		c.safely(func() { fn() })
	}
}

func (c *Controller) moved(r MoveReport) {
	c.obsMu.Lock()
	fns := append([]func(MoveReport){}, c.onMoveEnd...)
	c.obsMu.Unlock()
	for _, fn := range fns {
		c.safely(func() { fn(r) })
	}
}

func (c *Controller) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("door observer panicked", "panic", r)
		}
	}()
	fn()
}
