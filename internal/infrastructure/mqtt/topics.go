package mqtt

import "fmt"

// Topic prefixes for the bridge's slice of the bus.
//
// All device topics use the flat scheme: rachio/{category}/valve/{device_id}.
// The "valve" protocol segment keeps the scheme compatible with multi-bridge
// deployments where other bridges claim their own protocol names.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "rachio"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "rachio/system"

	// protocolValve is the protocol segment for irrigation valve devices.
	protocolValve = "valve"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("valve-1")
//	// Returns: "rachio/state/valve/valve-1"
type Topics struct{}

// DeviceState returns the topic for a device's state updates.
//
// Example: rachio/state/valve/valve-1
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocolValve, deviceID)
}

// DeviceCommand returns the topic commands for a device arrive on.
//
// Example: rachio/command/valve/valve-1
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocolValve, deviceID)
}

// DeviceAck returns the topic command acknowledgements are published to.
//
// Example: rachio/ack/valve/valve-1
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocolValve, deviceID)
}

// Event returns the topic for registry lifecycle events.
//
// Example: rachio/event/device_registered
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// SystemStatus returns the bridge online/offline status topic.
//
// Example: rachio/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: rachio/command/valve/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocolValve)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: rachio/state/valve/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocolValve)
}

// AllTopics returns a pattern matching the bridge's entire topic space.
// Use with caution - this receives ALL traffic.
//
// Pattern: rachio/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// CommandDeviceID extracts the device id from a command topic.
// Returns false when the topic is not a device command topic.
func (Topics) CommandDeviceID(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, protocolValve)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	id := topic[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return "", false
		}
	}
	return id, true
}
