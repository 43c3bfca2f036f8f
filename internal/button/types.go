// Package button turns the shutdown button into reboot and shutdown requests.
// The detector is pure: no GPIO, no OS calls, no time.Sleep.
// Time is always injectable via time.Time parameters.
package button

import "time"

// State is the debounced state of the button.
type State string

const (
	StateReleased State = "RELEASED"
	StatePressed  State = "PRESSED"
)

// Action is what a completed press asks for.
type Action string

const (
	ActionNone     Action = "NONE"
	ActionReboot   Action = "REBOOT"
	ActionShutdown Action = "SHUTDOWN"
)

// Input is a single sample of the button line, already converted from the
// raw level.
type Input struct {
	Pressed bool
	Time    time.Time
}

// Press is a completed press-then-release cycle.
type Press struct {
	PressedAt  time.Time
	ReleasedAt time.Time
	Duration   time.Duration
	Action     Action
}

// Thresholds are the hold durations that must be exceeded for each action.
type Thresholds struct {
	Reboot   time.Duration
	Shutdown time.Duration
}

// Classify maps a hold duration to an action.
func (t Thresholds) Classify(held time.Duration) Action {
	switch {
	case held > t.Shutdown:
		return ActionShutdown
	case held > t.Reboot:
		return ActionReboot
	default:
		return ActionNone
	}
}
