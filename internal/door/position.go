// Package door drives the coop door motor and tracks the door position.
package door

import (
	"fmt"
	"time"
)

// Position is the door state as known to the controller.
type Position int

const (
	NotMoving Position = iota
	MovingUp
	MovingDown
	Open
	Closed
)

var positionNames = [...]string{
	NotMoving:  "not_moving",
	MovingUp:   "moving_up",
	MovingDown: "moving_down",
	Open:       "open",
	Closed:     "closed",
}

func (p Position) String() string {
	if p < 0 || int(p) >= len(positionNames) {
		return fmt.Sprintf("position(%d)", int(p))
	}
	return positionNames[p]
}

// IsMoving reports whether the motor is running.
func (p Position) IsMoving() bool {
	return p == MovingUp || p == MovingDown
}

// ParsePosition parses the persisted form of a position.
func ParsePosition(s string) (Position, error) {
	for i, name := range positionNames {
		if name == s {
			return Position(i), nil
		}
	}
	return NotMoving, fmt.Errorf("unknown door position %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Direction of travel.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// MoveResult is the outcome of an Open or Close request.
type MoveResult int

const (
	// MoveRejected means the door was already moving or already at the target.
	MoveRejected MoveResult = iota
	// MoveCompleted means the end contact was reached.
	MoveCompleted
	// MoveTimedOut means the travel time elapsed without a contact signal.
	// The door is assumed to be at the target.
	MoveTimedOut
	// MoveStopped means Stop interrupted the travel.
	MoveStopped
	// MoveFailed means a relay could not be switched.
	MoveFailed
)

func (r MoveResult) String() string {
	switch r {
	case MoveRejected:
		return "rejected"
	case MoveCompleted:
		return "completed"
	case MoveTimedOut:
		return "timed_out"
	case MoveStopped:
		return "stopped"
	case MoveFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Moved reports whether the door ended at its target.
func (r MoveResult) Moved() bool {
	return r == MoveCompleted || r == MoveTimedOut
}

// MarshalText implements encoding.TextMarshaler.
func (r MoveResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MoveReport describes a finished motion.
type MoveReport struct {
	Direction Direction
	Result    MoveResult
	Started   time.Time
	Duration  time.Duration
}
