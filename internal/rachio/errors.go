package rachio

import "errors"

// Domain errors for the rachio package.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, rachio.ErrAuth) {
//	    // credential missing or rejected
//	}
var (
	// ErrAuth is returned when the credential is missing or the cloud
	// rejects it (401/403).
	ErrAuth = errors.New("rachio: authentication failed")

	// ErrTransport is returned on network failure or a server-side error
	// from the vendor cloud.
	ErrTransport = errors.New("rachio: transport failure")

	// ErrMalformedResponse is returned when a response decodes to
	// something other than the documented schema. It is deliberately
	// distinct from ErrTransport so callers can tell a broken payload
	// from an unreachable cloud.
	ErrMalformedResponse = errors.New("rachio: malformed response")

	// ErrCommand is returned when the cloud rejects a valve command or
	// is unreachable during one.
	ErrCommand = errors.New("rachio: command failed")
)
