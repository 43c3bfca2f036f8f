// Package light switches the indoor and outdoor coop lights.
package light

import (
	"fmt"
	"sync"

	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/store"
)

// Channel selects a light relay.
type Channel int

const (
	Indoor Channel = iota
	Outdoor
)

func (ch Channel) String() string {
	if ch == Indoor {
		return "indoor"
	}
	return "outdoor"
}

func (ch Channel) line() gpio.Line {
	if ch == Indoor {
		return gpio.LineIndoorLight
	}
	return gpio.LineOutdoorLight
}

// Controller owns the light relays and remembers the last commanded state.
type Controller struct {
	board  gpio.Board
	state  *store.File
	levels gpio.Levels
	log    *logging.Logger

	mu sync.Mutex
	on [2]bool

	obsMu    sync.Mutex
	onChange []func()
}

// New creates a Controller. Lights are not restored across restarts:
// both relays are switched off.
func New(board gpio.Board, state *store.File, levels gpio.Levels, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Discard()
	}
	c := &Controller{
		board:  board,
		state:  state,
		levels: levels,
		log:    log.With("component", "light"),
	}
	for _, ch := range []Channel{Indoor, Outdoor} {
		if err := board.Set(ch.line(), levels.RelayOff()); err != nil {
			c.log.Error("switching light off failed", "light", ch, "error", err)
		}
	}
	c.persist()
	return c
}

// OnChange registers fn to be called after a light changes.
func (c *Controller) OnChange(fn func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Switch sets a light. Switching to the current state is a no-op.
func (c *Controller) Switch(ch Channel, on bool) error {
	c.mu.Lock()
	if c.on[ch] == on {
		c.mu.Unlock()
		return nil
	}
	if err := c.board.Set(ch.line(), c.levels.Relay(on)); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("switch %s light: %w", ch, err)
	}
	c.on[ch] = on
	c.persist()
	c.mu.Unlock()

	c.log.Info("light switched", "light", ch, "on", on)
	c.changed()
	return nil
}

// SwitchIndoor sets the indoor light.
func (c *Controller) SwitchIndoor(on bool) error { return c.Switch(Indoor, on) }

// SwitchOutdoor sets the outdoor light.
func (c *Controller) SwitchOutdoor(on bool) error { return c.Switch(Outdoor, on) }

// IsOn returns the last commanded state of a light.
func (c *Controller) IsOn(ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on[ch]
}

// IndoorOn returns the last commanded indoor state.
func (c *Controller) IndoorOn() bool { return c.IsOn(Indoor) }

// OutdoorOn returns the last commanded outdoor state.
func (c *Controller) OutdoorOn() bool { return c.IsOn(Outdoor) }

func (c *Controller) persist() {
	if c.state == nil {
		return
	}
	indoor, outdoor := c.on[Indoor], c.on[Outdoor]
	err := c.state.Update(func(r *store.Record) {
		r.IndoorLight = indoor
		r.OutdoorLight = outdoor
	})
	if err != nil {
		c.log.Error("persisting light state failed", "error", err)
	}
}

func (c *Controller) changed() {
	c.obsMu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.obsMu.Unlock()
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("light observer panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}
