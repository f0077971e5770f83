// Package rachio is the typed client for the Rachio cloud valve API.
//
// It covers the two surfaces the bridge needs:
//
//   - Catalog reads: resolve the account owner, list base stations, list
//     the valves behind a station. All reads are idempotent and carry no
//     client-side state.
//   - Valve commands: start watering (with an explicit duration) and stop
//     watering for a single valve id.
//
// Every call takes the credential explicitly. The client never caches or
// stores a credential, so a settings update simply changes what the caller
// passes in - there is no ambient token state to invalidate.
//
// Failures map onto the package sentinels: ErrAuth for missing/rejected
// credentials, ErrTransport for network and server failures,
// ErrMalformedResponse for payloads that do not match the documented
// schema, and ErrCommand for rejected valve commands. No call retries;
// the caller decides what a failure means for its run.
package rachio
