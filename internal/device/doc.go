// Package device is the local device registry for the Rachio bridge.
//
// It holds the set of valve devices mirrored from the vendor cloud and is
// the single source of truth the host-facing surfaces (HTTP API, MQTT
// announcements, WebSocket stream) read from.
//
// The registry keys devices by the vendor valve id, which is stable across
// discovery runs. Discovery reconciliation mutates the registry through
// exactly one entry point, ApplyBatch, so the host never observes a
// half-registered catalog. Registered devices are persisted to SQLite so
// identity survives restarts.
package device
