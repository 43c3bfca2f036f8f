package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/coop-controller/internal/schedule"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Seq           uint64           `json:"seq"`
	Door          string           `json:"door"`
	IndoorLight   bool             `json:"indoor_light"`
	OutdoorLight  bool             `json:"outdoor_light"`
	Automatic     AutomaticJSON    `json:"automatic"`
	OpenAt        string           `json:"open_at,omitempty"`
	CloseAt       string           `json:"close_at,omitempty"`
	NextActions   []ActionJSON     `json:"next_actions"`
	LightWindow   *LightWindowJSON `json:"light_window,omitempty"`
	Sensors       SensorsJSON      `json:"sensors"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Config        ConfigJSON       `json:"config"`
}

// AutomaticJSON reports the automatic mode.
type AutomaticJSON struct {
	Mode       string `json:"mode"`
	ReenableAt string `json:"reenable_at,omitempty"`
}

// ActionJSON is a scheduled door action.
type ActionJSON struct {
	At     string `json:"at"`
	Action string `json:"action"`
}

// LightWindowJSON is the armed indoor light window.
type LightWindowJSON struct {
	On  string `json:"on"`
	Off string `json:"off"`
}

// SensorsJSON reports the analog readings; null means no value.
type SensorsJSON struct {
	Light       *float64 `json:"light"`
	Temperature *float64 `json:"temperature"`
	SampledAt   string   `json:"sampled_at,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	HTTPAddr string  `json:"http_addr"`
	Latitude float64 `json:"latitude"`
	Timezone string  `json:"timezone"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// NewAutomaticJSON describes m.
func NewAutomaticJSON(m schedule.Mode) AutomaticJSON {
	out := AutomaticJSON{Mode: m.Kind.String()}
	if m.Kind == schedule.TemporarilyOff {
		out.ReenableAt = formatTime(m.ReenableAt)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Seq:           snap.Seq,
		Door:          snap.Door.String(),
		IndoorLight:   snap.IndoorLight,
		OutdoorLight:  snap.OutdoorLight,
		Automatic:     NewAutomaticJSON(snap.Automatic),
		OpenAt:        formatTime(snap.Window.Open),
		CloseAt:       formatTime(snap.Window.Close),
		NextActions:   []ActionJSON{},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Sensors: SensorsJSON{
			Light:       snap.Sensors.Light,
			Temperature: snap.Sensors.Temperature,
			SampledAt:   formatTime(snap.SensorsAt),
		},
		Config: ConfigJSON{
			HTTPAddr: snap.Config.HTTPAddr,
			Latitude: snap.Config.Latitude,
			Timezone: snap.Config.Timezone,
		},
	}

	for _, e := range snap.NextActions {
		if e.At.IsZero() {
			continue
		}
		inner.NextActions = append(inner.NextActions, ActionJSON{At: formatTime(e.At), Action: e.Action.String()})
	}
	if lw := snap.LightWindow; lw != nil {
		inner.LightWindow = &LightWindowJSON{On: formatTime(lw.On), Off: formatTime(lw.Off)}
	}
	return inner
}

// Build returns the JSON document for snap.
func Build(snap Snapshot) StatusJSON {
	return StatusJSON{Status: buildInner(snap)}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT message.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
