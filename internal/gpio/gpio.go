// Package gpio provides the digital I/O boundary of the coop controller.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Line identifies a logical line of the coop wiring.
type Line int

const (
	LineMotor Line = iota
	LineDirection
	LineIndoorLight
	LineOutdoorLight
	LineUpperReed
	LineLowerReed
	LineButton
)

func (l Line) String() string {
	switch l {
	case LineMotor:
		return "motor"
	case LineDirection:
		return "direction"
	case LineIndoorLight:
		return "indoor_light"
	case LineOutdoorLight:
		return "outdoor_light"
	case LineUpperReed:
		return "upper_reed"
	case LineLowerReed:
		return "lower_reed"
	case LineButton:
		return "button"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

// IsOutput reports whether the line drives a relay.
func (l Line) IsOutput() bool {
	switch l {
	case LineMotor, LineDirection, LineIndoorLight, LineOutdoorLight:
		return true
	}
	return false
}

// Board reads and writes raw line levels (0 or 1).
type Board interface {
	// Get returns the raw level of a line.
	Get(line Line) (int, error)

	// Set drives an output line to a raw level.
	Set(line Line, value int) error

	// Close releases GPIO resources.
	Close() error
}

// Pins maps logical lines to BCM offsets.
type Pins struct {
	Motor        int
	Direction    int
	IndoorLight  int
	OutdoorLight int
	UpperReed    int
	LowerReed    int
	Button       int
}

func (p Pins) offset(line Line) (int, bool) {
	switch line {
	case LineMotor:
		return p.Motor, true
	case LineDirection:
		return p.Direction, true
	case LineIndoorLight:
		return p.IndoorLight, true
	case LineOutdoorLight:
		return p.OutdoorLight, true
	case LineUpperReed:
		return p.UpperReed, true
	case LineLowerReed:
		return p.LowerReed, true
	case LineButton:
		return p.Button, true
	}
	return 0, false
}

// Levels holds the electrical conventions of the relay board and contacts.
type Levels struct {
	RelayOn       int
	ContactClosed int
	DirectionUp   int
	ButtonPressed int
}

// RelayOff is the level that de-energizes a relay.
func (l Levels) RelayOff() int { return 1 - l.RelayOn }

// DirectionDown is the direction relay level that moves the door down.
func (l Levels) DirectionDown() int { return 1 - l.DirectionUp }

// Relay converts a logical on/off into a relay level.
func (l Levels) Relay(on bool) int {
	if on {
		return l.RelayOn
	}
	return l.RelayOff()
}

// DefaultLevels match the reference relay board: active-low relays,
// reed contacts and button pulling to ground.
var DefaultLevels = Levels{
	RelayOn:       0,
	ContactClosed: 0,
	DirectionUp:   1,
	ButtonPressed: 0,
}
