// Package database provides SQLite persistence for the Rachio bridge.
//
// It wraps database/sql with the mattn/go-sqlite3 driver and adds:
//
//   - WAL mode and busy-timeout pragmas tuned for a single-writer workload
//   - Versioned schema migrations embedded into the binary
//   - Health checks for the supervisor loop
//
// The bridge stores the mirrored device registry here so that registered
// valve devices keep their identity across restarts even before the first
// discovery run completes.
package database
