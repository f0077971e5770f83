package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// DiscoveryRun records one discovery run outcome.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Satisfies the discovery service's Telemetry interface.
func (c *Client) DiscoveryRun(runID, outcome string, valves int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery_runs",
		map[string]string{
			"outcome": outcome,
		},
		map[string]interface{}{
			"run_id":      runID,
			"valves":      valves,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// CommandResult records the outcome of a valve command.
func (c *Client) CommandResult(valveID, command string, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"valve_commands",
		map[string]string{
			"valve_id": valveID,
			"command":  command,
		},
		map[string]interface{}{
			"success": success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RegistrySize records the current number of registered devices.
// Written after each discovery run that changes the registry.
func (c *Client) RegistrySize(count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"registry",
		nil,
		map[string]interface{}{
			"devices": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
