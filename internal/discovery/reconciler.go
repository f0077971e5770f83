package discovery

import (
	"context"
	"time"

	"github.com/WVandergrift/rachio-bridge/internal/device"
)

// FacadeReleaser discards live facades for removed devices.
// Satisfied by *valve.Provider.
type FacadeReleaser interface {
	Release(valveID string)
}

// ReleaserFunc adapts a plain function to the FacadeReleaser interface.
type ReleaserFunc func(valveID string)

// Release calls f.
func (f ReleaserFunc) Release(valveID string) { f(valveID) }

// Reconciler diffs a discovery result against the device registry and
// applies the minimal batch of registration changes.
type Reconciler struct {
	registry *device.Registry
	releaser FacadeReleaser
	logger   Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler over the registry.
// releaser may be nil if no facade provider is wired (tests).
func NewReconciler(registry *device.Registry, releaser FacadeReleaser) *Reconciler {
	return &Reconciler{
		registry: registry,
		releaser: releaser,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// Reconcile applies a discovery result to the registry and returns the
// batch that was applied.
//
// Policy:
//   - An empty result changes nothing. This covers both "credential
//     cleared" and "user with no hardware"; neither is read as an order
//     to tear the registry down.
//   - A non-empty result is treated as the authoritative catalog: new
//     valves are registered, renamed valves are updated in place (the
//     handle survives), and devices whose valve vanished are removed.
//
// Unchanged valves produce no batch entry, so an idempotent re-run with
// identical remote state applies an empty batch and touches nothing.
func (r *Reconciler) Reconcile(ctx context.Context, discovered []Valve) (device.Batch, error) {
	var batch device.Batch
	if len(discovered) == 0 {
		r.logger.Debug("reconcile skipped: empty discovery result")
		return batch, nil
	}

	existing := make(map[string]device.Device)
	for _, d := range r.registry.List(ctx) {
		existing[d.ID] = d
	}

	now := r.now().UTC()
	seen := make(map[string]bool, len(discovered))
	for _, v := range discovered {
		seen[v.ID] = true

		current, ok := existing[v.ID]
		if !ok {
			batch.Adds = append(batch.Adds, device.NewValveDevice(v.ID, v.Name, v.StationID, now))
			continue
		}
		if current.Name != v.Name || current.StationID != v.StationID {
			updated := current
			updated.Name = v.Name
			updated.StationID = v.StationID
			updated.UpdatedAt = now
			batch.Updates = append(batch.Updates, updated)
		}
	}

	for id := range existing {
		if !seen[id] {
			batch.Removes = append(batch.Removes, id)
		}
	}

	if err := r.registry.Apply(ctx, batch); err != nil {
		return device.Batch{}, err
	}

	if r.releaser != nil {
		for _, id := range batch.Removes {
			r.releaser.Release(id)
		}
	}
	return batch, nil
}
