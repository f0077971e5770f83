package bridge

import (
	"time"

	"github.com/WVandergrift/rachio-bridge/internal/device"
)

// CommandMessage is the inbound payload on rachio/command/valve/{id}.
//
// DurationSeconds is honoured only when On is true; zero means the
// default watering duration.
type CommandMessage struct {
	On              bool `json:"on"`
	DurationSeconds int  `json:"duration_seconds,omitempty"`
}

// AckMessage is published on rachio/ack/valve/{id} after every command
// attempt, successful or not.
type AckMessage struct {
	DeviceID  string `json:"device_id"`
	Command   string `json:"command"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StateMessage is the retained snapshot published on
// rachio/state/valve/{id}.
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	StationID string         `json:"station_id"`
	State     map[string]any `json:"state"`
	Timestamp string         `json:"timestamp"`
}

// EventMessage is published on rachio/event/{type} for registry
// lifecycle changes.
type EventMessage struct {
	Type      string        `json:"type"`
	Device    device.Device `json:"device"`
	Timestamp string        `json:"timestamp"`
}

// newAck builds an acknowledgement for a command outcome.
func newAck(deviceID, command string, err error) AckMessage {
	ack := AckMessage{
		DeviceID:  deviceID,
		Command:   command,
		Success:   err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		ack.Error = err.Error()
	}
	return ack
}

// newStateMessage builds the retained state snapshot for a device.
func newStateMessage(d device.Device) StateMessage {
	return StateMessage{
		DeviceID:  d.ID,
		Name:      d.Name,
		Type:      d.Type,
		StationID: d.StationID,
		State:     d.State,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
