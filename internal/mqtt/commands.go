package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
)

// Command names accepted on the command topic.
const (
	CommandOpenDoor     = "open_door"
	CommandCloseDoor    = "close_door"
	CommandStopDoor     = "stop_door"
	CommandIndoorLight  = "indoor_light"
	CommandOutdoorLight = "outdoor_light"
	CommandAutomatic    = "automatic"
)

// ErrUnknownCommand is returned for a command name HandleCommand does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Commander is the part of the control surface reachable over MQTT.
type Commander interface {
	OpenDoor() door.MoveResult
	CloseDoor() door.MoveResult
	StopDoor()
	SwitchIndoorLight(on bool) error
	SwitchOutdoorLight(on bool) error
	SwitchDoorAutomatic(setting schedule.Setting) schedule.Mode
}

// Command is the JSON message on the command topic, e.g.
//
//	{"command": "indoor_light", "on": true}
//	{"command": "automatic", "mode": "disabled"}
type Command struct {
	Command string `json:"command"`
	On      *bool  `json:"on,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// HandleCommand decodes payload and applies it to c. Door commands block
// until the motion ends.
func HandleCommand(c Commander, payload []byte, log *logging.Logger) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	switch cmd.Command {
	case CommandOpenDoor:
		result := c.OpenDoor()
		log.Info("mqtt command applied", "command", cmd.Command, "result", result)
	case CommandCloseDoor:
		result := c.CloseDoor()
		log.Info("mqtt command applied", "command", cmd.Command, "result", result)
	case CommandStopDoor:
		c.StopDoor()
		log.Info("mqtt command applied", "command", cmd.Command)
	case CommandIndoorLight, CommandOutdoorLight:
		if cmd.On == nil {
			return fmt.Errorf("%s: missing \"on\"", cmd.Command)
		}
		switchLight := c.SwitchIndoorLight
		if cmd.Command == CommandOutdoorLight {
			switchLight = c.SwitchOutdoorLight
		}
		if err := switchLight(*cmd.On); err != nil {
			return fmt.Errorf("%s: %w", cmd.Command, err)
		}
		log.Info("mqtt command applied", "command", cmd.Command, "on", *cmd.On)
	case CommandAutomatic:
		setting, err := schedule.ParseSetting(cmd.Mode)
		if err != nil {
			return fmt.Errorf("automatic: %w", err)
		}
		mode := c.SwitchDoorAutomatic(setting)
		log.Info("mqtt command applied", "command", cmd.Command, "mode", mode.String())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return nil
}
