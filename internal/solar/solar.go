// Package solar computes sunrise/sunset and the door opening window.
//
// The sun times come from closed-form approximations of declination and
// the equation of time, accurate to a few minutes at mid latitudes.
// All results depend only on the calendar date in the configured location.
package solar

import (
	"fmt"
	"math"
	"time"
)

// Action is what the door should do at a boundary.
type Action int

const (
	ActionClose Action = iota
	ActionOpen
)

func (a Action) String() string {
	if a == ActionOpen {
		return "open"
	}
	return "close"
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Window is the open/close pair for one day.
type Window struct {
	Open  time.Time `json:"open"`
	Close time.Time `json:"close"`
}

// Event is a scheduled door action.
type Event struct {
	At     time.Time `json:"at"`
	Action Action    `json:"action"`
}

// Calculator derives door times for a site.
type Calculator struct {
	Latitude   float64
	Location   *time.Location
	DawnOffset time.Duration
	DuskOffset time.Duration
	// EarliestOpen is the earliest opening time per weekday, as an offset
	// from local midnight, indexed by time.Weekday.
	EarliestOpen [7]time.Duration
}

// horizon is the sun altitude at sunrise: refraction plus the solar radius.
var horizon = -50.0 / 60.0 * math.Pi / 180.0

// SunTimes returns sunrise and sunset on the calendar date of day.
func (c Calculator) SunTimes(day time.Time) (sunrise, sunset time.Time) {
	local := day.In(c.location())
	doy := float64(local.YearDay())

	decl := 0.409526325277017 * math.Sin(0.0169060504029192*(doy-80.0856919827619))
	timeDiff := -0.170869921174742*math.Sin(0.0336997028793971*doy+0.465419984181394) -
		0.129890681040717*math.Sin(0.0178674832556871*doy-0.167936777524864)

	lat := c.Latitude * math.Pi / 180.0
	cosH := (math.Sin(horizon) - math.Sin(lat)*math.Sin(decl)) / (math.Cos(lat) * math.Cos(decl))
	cosH = math.Max(-1, math.Min(1, cosH))
	halfDay := 12.0 * math.Acos(cosH) / math.Pi

	diff := time.Duration((halfDay - timeDiff) * float64(time.Hour))

	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, local.Location())
	if noon.IsDST() {
		noon = noon.Add(time.Hour)
	}
	return noon.Add(-diff), noon.Add(diff)
}

// DoorTimes returns the door window for the calendar date of day.
// Opening never happens before the weekday's earliest open time.
func (c Calculator) DoorTimes(day time.Time) Window {
	sunrise, sunset := c.SunTimes(day)

	open := sunrise.Add(c.DawnOffset)
	local := day.In(c.location())
	floor := c.EarliestOpen[local.Weekday()]
	earliest := time.Date(local.Year(), local.Month(), local.Day(),
		int(floor/time.Hour), int(floor%time.Hour/time.Minute), 0, 0, local.Location())
	if open.Before(earliest) {
		open = earliest
	}

	return Window{Open: open, Close: sunset.Add(c.DuskOffset)}
}

// NextActions returns the next two door actions after now, in order. Once
// the day's window has closed, tomorrow's window is used.
func (c Calculator) NextActions(now time.Time, w Window) [2]Event {
	switch {
	case now.Before(w.Open):
		return [2]Event{{w.Open, ActionOpen}, {w.Close, ActionClose}}
	case now.Before(w.Close):
		next := c.DoorTimes(c.tomorrow(now))
		return [2]Event{{w.Close, ActionClose}, {next.Open, ActionOpen}}
	default:
		next := c.DoorTimes(c.tomorrow(now))
		return [2]Event{{next.Open, ActionOpen}, {next.Close, ActionClose}}
	}
}

// DoorAction returns ActionOpen on [open, close) and ActionClose elsewhere.
func DoorAction(now time.Time, w Window) Action {
	if !now.Before(w.Open) && now.Before(w.Close) {
		return ActionOpen
	}
	return ActionClose
}

func (c Calculator) tomorrow(now time.Time) time.Time {
	local := now.In(c.location())
	return time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, local.Location())
}

func (c Calculator) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", w.Open.Format("15:04"), w.Close.Format("15:04"))
}
