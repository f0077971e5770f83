// Package influxdb provides operational telemetry storage for the
// Rachio bridge.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// # Purpose
//
// The bridge records how it is behaving, not what the irrigation
// system did: discovery run outcomes and durations, valve command
// results, and registry size. Watering history belongs to the vendor
// cloud and is deliberately not mirrored here.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.DiscoveryRun(runID, "ok", 4, elapsed)
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
