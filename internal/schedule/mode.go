package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// ModeKind says whether the scheduler may act on its own.
type ModeKind int

const (
	On ModeKind = iota
	TemporarilyOff
	PermanentlyOff
)

func (k ModeKind) String() string {
	switch k {
	case On:
		return "on"
	case TemporarilyOff:
		return "temporarily_off"
	case PermanentlyOff:
		return "permanently_off"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

// Mode is the automatic mode. ReenableAt is only meaningful for
// TemporarilyOff.
type Mode struct {
	Kind       ModeKind
	ReenableAt time.Time
}

// Automatic reports whether the scheduler may act.
func (m Mode) Automatic() bool { return m.Kind == On }

func (m Mode) String() string {
	if m.Kind == TemporarilyOff {
		return fmt.Sprintf("%s until %s", m.Kind, m.ReenableAt.Format(time.RFC3339))
	}
	return m.Kind.String()
}

// MarshalJSON encodes the mode as {"mode": ..., "reenable_at": ...}.
func (m Mode) MarshalJSON() ([]byte, error) {
	out := struct {
		Mode       string     `json:"mode"`
		ReenableAt *time.Time `json:"reenable_at,omitempty"`
	}{Mode: m.Kind.String()}
	if m.Kind == TemporarilyOff {
		at := m.ReenableAt
		out.ReenableAt = &at
	}
	return json.Marshal(out)
}

// Setting is a requested automatic mode.
type Setting string

const (
	SettingOn       Setting = "on"
	SettingOff      Setting = "off"
	SettingDisabled Setting = "disabled"
)

// ParseSetting validates a requested mode.
func ParseSetting(s string) (Setting, error) {
	switch v := Setting(s); v {
	case SettingOn, SettingOff, SettingDisabled:
		return v, nil
	}
	return "", fmt.Errorf("unknown automatic mode %q (want on, off or disabled)", s)
}
