package button

import "time"

// Detector debounces button samples and reports completed presses.
type Detector struct {
	debounce   time.Duration
	thresholds Thresholds

	stable       State
	pending      State
	pendingSince time.Time
	baselined    bool

	pressedAt time.Time
}

// NewDetector creates a detector with the given debounce duration.
func NewDetector(debounce time.Duration, thresholds Thresholds) *Detector {
	return &Detector{
		debounce:   debounce,
		thresholds: thresholds,
	}
}

// Process takes a new sample and returns a Press when a press-then-release
// cycle completes. The state seen at startup only establishes the baseline,
// so a button held while the process starts never triggers an action.
func (d *Detector) Process(in Input) *Press {
	state := StateReleased
	if in.Pressed {
		state = StatePressed
	}

	if !d.settle(state, in.Time) {
		return nil
	}

	switch d.stable {
	case StatePressed:
		d.pressedAt = in.Time
		return nil
	default:
		if d.pressedAt.IsZero() {
			// release without a press we saw
			return nil
		}
		held := in.Time.Sub(d.pressedAt)
		p := &Press{
			PressedAt:  d.pressedAt,
			ReleasedAt: in.Time,
			Duration:   held,
			Action:     d.thresholds.Classify(held),
		}
		d.pressedAt = time.Time{}
		return p
	}
}

// settle applies the debounce and reports whether the stable state changed.
func (d *Detector) settle(state State, now time.Time) bool {
	if !d.baselined {
		if d.pending != state {
			d.pending = state
			d.pendingSince = now
			return false
		}
		if now.Sub(d.pendingSince) >= d.debounce {
			d.stable = state
			d.baselined = true
			d.pending = ""
		}
		return false
	}

	if state == d.stable {
		d.pending = ""
		return false
	}
	if d.pending != state {
		d.pending = state
		d.pendingSince = now
		return false
	}
	if now.Sub(d.pendingSince) < d.debounce {
		return false
	}
	d.stable = state
	d.pending = ""
	return true
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the debounced state.
func (d *Detector) CurrentState() State {
	return d.stable
}
