package device

import (
	"maps"
	"slices"
	"time"
)

// TypeIrrigationValve is the device type for a mirrored cloud valve.
const TypeIrrigationValve = "irrigation-valve"

// CapabilityOnOff marks a device that can be switched on and off.
const CapabilityOnOff = "on_off"

// Device is a locally registered handle for a remote valve.
//
// ID is the vendor valve id (the native id): globally unique and stable
// across discovery runs, so re-syncs update in place instead of minting
// new devices.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	StationID    string         `json:"station_id"`
	Capabilities []string       `json:"capabilities"`
	State        map[string]any `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns an independent copy of the Device.
// Slice and map fields are copied so mutations on the clone do not leak
// into the registry cache.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Capabilities = slices.Clone(d.Capabilities)
	if d.State != nil {
		cpy.State = maps.Clone(d.State)
	}
	return &cpy
}

// HasCapability reports whether the device carries the given capability.
func (d *Device) HasCapability(capability string) bool {
	return slices.Contains(d.Capabilities, capability)
}

// NewValveDevice builds the registered form of a discovered valve.
func NewValveDevice(valveID, name, stationID string, now time.Time) Device {
	return Device{
		ID:           valveID,
		Name:         name,
		Type:         TypeIrrigationValve,
		StationID:    stationID,
		Capabilities: []string{CapabilityOnOff},
		State:        map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
