// Package mqtt publishes door actions and controller state to MQTT and
// accepts remote commands, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/coop-controller/internal/solar"
)

// Topics are the MQTT topics below the configured prefix.
type Topics struct {
	// Events receives a message for every scheduler-driven door action.
	Events string
	// State holds the latest retained status snapshot.
	State string
	// System receives lifecycle events and the last will.
	System string
	// Command is subscribed for remote commands.
	Command string
}

// NewTopics derives the topics from prefix, e.g. "coop" gives "coop/events".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Events:  prefix + "/events",
		State:   prefix + "/state",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// PublishDoorAction sends a door action event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishDoorAction(event DoorEvent) error

	// PublishState sends a retained status snapshot.
	PublishState(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// DoorEvent is a door action taken by the scheduler.
type DoorEvent struct {
	Timestamp time.Time
	Action    solar.Action
	OpenAt    time.Time
	CloseAt   time.Time
}

// SystemEvent represents a system lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for door events.
type Payload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the door event details.
type DoorPayload struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	OpenAt    string `json:"open_at"`
	CloseAt   string `json:"close_at"`
}

// FormatPayload creates the JSON payload for a door event.
func FormatPayload(event DoorEvent) ([]byte, error) {
	payload := Payload{
		Door: DoorPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Action:    event.Action.String(),
			OpenAt:    event.OpenAt.UTC().Format(time.RFC3339),
			CloseAt:   event.CloseAt.UTC().Format(time.RFC3339),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (last will) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
