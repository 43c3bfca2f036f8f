package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/sweeney/coop-controller/internal/config"
	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/store"
)

func pinsFromConfig(c config.GPIOConfig) gpio.Pins {
	return gpio.Pins{
		Motor:        c.Motor,
		Direction:    c.Direction,
		IndoorLight:  c.IndoorLight,
		OutdoorLight: c.OutdoorLight,
		UpperReed:    c.UpperReed,
		LowerReed:    c.LowerReed,
		Button:       c.Button,
	}
}

func levelsFromConfig(c config.GPIOConfig) gpio.Levels {
	return gpio.Levels{
		RelayOn:       c.RelayOnLevel,
		ContactClosed: c.ContactClosedLevel,
		DirectionUp:   c.DirectionUpLevel,
		ButtonPressed: c.ButtonPressedLevel,
	}
}

func doorOptions(c config.DoorConfig, levels gpio.Levels) door.Options {
	return door.Options{
		MoveUpTime:         c.MoveUpTime,
		MoveDownTime:       c.MoveDownTime,
		UpperContactOffset: c.UpperContactOffset,
		LowerContactOffset: c.LowerContactOffset,
		ContactSamples:     c.ContactSamples,
		ContactThreshold:   c.ContactThreshold,
		SampleInterval:     c.SampleInterval,
		Levels:             levels,
	}
}

func scheduleOptions(c config.ScheduleConfig) schedule.Options {
	return schedule.Options{
		SunriseInterval:      c.SunriseInterval,
		DoorCheckInterval:    c.DoorCheckInterval,
		AutomaticOffTime:     c.AutomaticOffTime,
		LightOnBeforeClosing: c.LightOnBeforeClosing,
		LightOffAfterClosing: c.LightOffAfterClosing,
		SensorInterval:       c.SensorInterval,
	}
}

func calculator(cfg *config.Config) (solar.Calculator, error) {
	loc, err := cfg.Site.Location()
	if err != nil {
		return solar.Calculator{}, err
	}
	earliest, err := cfg.Schedule.EarliestOpenTimes()
	if err != nil {
		return solar.Calculator{}, err
	}
	return solar.Calculator{
		Latitude:     cfg.Site.Latitude,
		Location:     loc,
		DawnOffset:   cfg.Schedule.DawnOffset,
		DuskOffset:   cfg.Schedule.DuskOffset,
		EarliestOpen: earliest,
	}, nil
}

var (
	closedColor = color.New(color.FgGreen, color.Bold)
	openColor   = color.New(color.FgYellow)
	faultColor  = color.New(color.FgRed, color.Bold)
)

// printBoardState writes the live reed contacts and the persisted state.
// Contacts are read once without debouncing.
func printBoardState(w io.Writer, board gpio.Board, state *store.File, levels gpio.Levels) error {
	upper, err := board.Get(gpio.LineUpperReed)
	if err != nil {
		return fmt.Errorf("read upper contact: %w", err)
	}
	lower, err := board.Get(gpio.LineLowerReed)
	if err != nil {
		return fmt.Errorf("read lower contact: %w", err)
	}
	upperClosed := upper == levels.ContactClosed
	lowerClosed := lower == levels.ContactClosed

	fmt.Fprintf(w, "upper contact: %s\n", contactString(upperClosed))
	fmt.Fprintf(w, "lower contact: %s\n", contactString(lowerClosed))

	switch {
	case upperClosed && lowerClosed:
		fmt.Fprintf(w, "door: %s\n", faultColor.Sprint("sensor fault (both contacts closed)"))
	case upperClosed:
		fmt.Fprintf(w, "door: %s\n", openColor.Sprint(door.Open))
	case lowerClosed:
		fmt.Fprintf(w, "door: %s\n", closedColor.Sprint(door.Closed))
	default:
		fmt.Fprintf(w, "door: %s\n", faultColor.Sprint("between contacts"))
	}

	rec, ok, err := state.Load()
	switch {
	case err != nil:
		fmt.Fprintf(w, "state file: %s\n", faultColor.Sprintf("unreadable (%v)", err))
	case !ok:
		fmt.Fprintf(w, "state file: %s\n", openColor.Sprint("missing"))
	default:
		fmt.Fprintf(w, "state file: door=%s indoor_light=%t outdoor_light=%t\n", rec.Door, rec.IndoorLight, rec.OutdoorLight)
	}
	return nil
}

func contactString(closed bool) string {
	if closed {
		return closedColor.Sprint("closed")
	}
	return openColor.Sprint("open")
}
