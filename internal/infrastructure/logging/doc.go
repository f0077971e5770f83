// Package logging provides structured logging for the Rachio bridge.
//
// It wraps Go's standard log/slog package to provide consistent,
// structured logging across the application:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets: the Rachio API key in particular must not appear in
// log output. Log key prefixes at most.
package logging
