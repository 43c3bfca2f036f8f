//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip   *gpiocdev.Chip
	lines  map[Line]*gpiocdev.Line
	levels Levels
}

// NewRealBoard requests every line of the coop wiring on the named chip.
// Relay outputs start de-energized; inputs use pull-ups since the reed
// contacts and the button switch to ground.
func NewRealBoard(chipName string, pins Pins, levels Levels) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{
		chip:   chip,
		lines:  make(map[Line]*gpiocdev.Line),
		levels: levels,
	}

	for line := LineMotor; line <= LineButton; line++ {
		offset, _ := pins.offset(line)

		var opt gpiocdev.LineReqOption
		if line.IsOutput() {
			opt = gpiocdev.AsOutput(levels.RelayOff())
		} else {
			opt = gpiocdev.AsInput
		}

		l, err := chip.RequestLine(offset, opt, gpiocdev.WithPullUp, gpiocdev.WithConsumer("coop-controller"))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", line, offset, err)
		}
		b.lines[line] = l
	}

	return b, nil
}

// Get returns the raw level of a line.
func (b *RealBoard) Get(line Line) (int, error) {
	l, ok := b.lines[line]
	if !ok {
		return 0, fmt.Errorf("line %s not requested", line)
	}
	v, err := l.Value()
	if err != nil {
		return 0, fmt.Errorf("read %s pin: %w", line, err)
	}
	return v, nil
}

// Set drives an output line.
func (b *RealBoard) Set(line Line, value int) error {
	if !line.IsOutput() {
		return fmt.Errorf("line %s is not an output", line)
	}
	l, ok := b.lines[line]
	if !ok {
		return fmt.Errorf("line %s not requested", line)
	}
	if err := l.SetValue(value); err != nil {
		return fmt.Errorf("write %s pin: %w", line, err)
	}
	return nil
}

// Close de-energizes every relay, returns the lines to inputs and releases
// the chip, so the motor can never be left running by a stopped process.
func (b *RealBoard) Close() error {
	var errs []error

	for line, l := range b.lines {
		if line.IsOutput() {
			if err := l.SetValue(b.levels.RelayOff()); err != nil {
				errs = append(errs, fmt.Errorf("release %s relay: %w", line, err))
			}
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", line, err))
			}
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", line, err))
		}
	}
	b.lines = nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
