// Package discovery turns the vendor cloud's hierarchical valve catalog
// into the bridge's flat device registry.
//
// A run walks user -> base stations -> valves, fanning the per-station
// valve listings out concurrently, then flattens the results and hands
// them to the reconciler. The reconciler diffs the discovered set against
// the registry and applies one atomic batch of adds, updates, and
// removals.
//
// Runs are triggered by credential updates and serialized by the Service:
// at most one run executes at a time, and an update arriving mid-run
// queues exactly one follow-up run that reads the latest credential, so
// the last update always wins.
//
// Failure policy, deliberately all-or-nothing: any error during the walk
// (user resolution, station listing, any single valve listing) aborts the
// run before reconciliation, so a failed run never changes the registry.
// Failures are logged and counted, never fatal to the process; the next
// credential update tries again.
package discovery
