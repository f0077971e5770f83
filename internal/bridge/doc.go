// Package bridge connects the device registry and valve facades to the
// MQTT bus.
//
// It handles:
//   - Receiving valve commands from the bus and dispatching them to the
//     vendor cloud through the valve facades
//   - Publishing command acknowledgements
//   - Publishing retained device state and registry lifecycle events
//
// Topic layout (see the mqtt package for builders):
//
//	rachio/command/valve/{id}   inbound  {"on":true,"duration_seconds":600}
//	rachio/ack/valve/{id}       outbound {"device_id":...,"command":...,"success":...}
//	rachio/state/valve/{id}     outbound retained device snapshot
//	rachio/event/{type}         outbound registry lifecycle events
package bridge
