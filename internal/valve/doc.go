// Package valve exposes per-valve on/off facades to the host surfaces.
//
// A Facade translates the host's on/off vocabulary into vendor cloud
// commands for one bound valve id. Facades are handed out by a Provider
// keyed on device id: asking twice for the same id yields the same
// instance, so a re-sync that leaves a valve in place never invalidates
// a live facade.
//
// Facades hold no authoritative state. They do not flip a local on/off
// flag when a command succeeds; the mirrored state in the device registry
// reflects what the bridge last observed or commanded.
package valve
