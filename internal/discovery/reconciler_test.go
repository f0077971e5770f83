package discovery

import (
	"context"
	"testing"

	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/rachio"
)

// stubRepository is an in-memory device.Repository for reconciler and
// service tests.
type stubRepository struct {
	devices    map[string]device.Device
	applyErr   error
	applyCalls int
}

func newStubRepository() *stubRepository {
	return &stubRepository{devices: make(map[string]device.Device)}
}

func (r *stubRepository) GetByID(_ context.Context, id string) (*device.Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

func (r *stubRepository) List(_ context.Context) ([]device.Device, error) {
	out := make([]device.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d.Clone())
	}
	return out, nil
}

func (r *stubRepository) ApplyBatch(_ context.Context, upserts []device.Device, removeIDs []string) error {
	r.applyCalls++
	if r.applyErr != nil {
		return r.applyErr
	}
	for _, d := range upserts {
		r.devices[d.ID] = *d.Clone()
	}
	for _, id := range removeIDs {
		delete(r.devices, id)
	}
	return nil
}

func (r *stubRepository) UpdateState(_ context.Context, id string, state map[string]any) error {
	d, ok := r.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.State = state
	r.devices[id] = d
	return nil
}

// recordReleaser captures facade release calls.
type recordReleaser struct {
	released []string
}

func (r *recordReleaser) Release(valveID string) {
	r.released = append(r.released, valveID)
}

func newTestRegistry(t *testing.T, repo device.Repository) *device.Registry {
	t.Helper()
	reg := device.NewRegistry(repo)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return reg
}

func discoveredValve(id, name, stationID string) Valve {
	return Valve{Valve: rachio.Valve{ID: id, Name: name}, StationID: stationID}
}

func TestReconcile_RegistersNewValves(t *testing.T) {
	reg := newTestRegistry(t, newStubRepository())
	r := NewReconciler(reg, nil)

	batch, err := r.Reconcile(context.Background(), []Valve{
		discoveredValve("valve-1", "Front Lawn", "station-a"),
		discoveredValve("valve-2", "Back Lawn", "station-a"),
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(batch.Adds) != 2 || len(batch.Updates) != 0 || len(batch.Removes) != 0 {
		t.Fatalf("batch = %d adds / %d updates / %d removes, want 2/0/0",
			len(batch.Adds), len(batch.Updates), len(batch.Removes))
	}
	if reg.Count() != 2 {
		t.Errorf("registry count = %d, want 2", reg.Count())
	}

	d, err := reg.Get(context.Background(), "valve-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Type != device.TypeIrrigationValve {
		t.Errorf("device type = %q, want %q", d.Type, device.TypeIrrigationValve)
	}
	if !d.HasCapability(device.CapabilityOnOff) {
		t.Error("device missing on_off capability")
	}
}

func TestReconcile_EmptyResultChangesNothing(t *testing.T) {
	repo := newStubRepository()
	reg := newTestRegistry(t, repo)
	r := NewReconciler(reg, nil)

	if _, err := r.Reconcile(context.Background(), []Valve{
		discoveredValve("valve-1", "Front Lawn", "station-a"),
	}); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}

	batch, err := r.Reconcile(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !batch.Empty() {
		t.Errorf("batch = %+v, want empty", batch)
	}
	if reg.Count() != 1 {
		t.Errorf("registry count = %d, want 1 (empty result must not remove)", reg.Count())
	}
}

func TestReconcile_RenamedValveUpdatedInPlace(t *testing.T) {
	reg := newTestRegistry(t, newStubRepository())
	r := NewReconciler(reg, nil)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "Front Lawn", "station-a")}); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}
	before, _ := reg.Get(ctx, "valve-1")

	batch, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "North Bed", "station-a")})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(batch.Updates) != 1 || len(batch.Adds) != 0 || len(batch.Removes) != 0 {
		t.Fatalf("batch = %d adds / %d updates / %d removes, want 0/1/0",
			len(batch.Adds), len(batch.Updates), len(batch.Removes))
	}

	after, err := reg.Get(ctx, "valve-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.Name != "North Bed" {
		t.Errorf("name = %q, want North Bed", after.Name)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed on rename: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
}

func TestReconcile_RemovesVanishedValves(t *testing.T) {
	reg := newTestRegistry(t, newStubRepository())
	releaser := &recordReleaser{}
	r := NewReconciler(reg, releaser)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []Valve{
		discoveredValve("valve-1", "Front Lawn", "station-a"),
		discoveredValve("valve-2", "Back Lawn", "station-a"),
	}); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}

	batch, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "Front Lawn", "station-a")})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(batch.Removes) != 1 || batch.Removes[0] != "valve-2" {
		t.Fatalf("batch.Removes = %v, want [valve-2]", batch.Removes)
	}
	if reg.Count() != 1 {
		t.Errorf("registry count = %d, want 1", reg.Count())
	}
	if len(releaser.released) != 1 || releaser.released[0] != "valve-2" {
		t.Errorf("released = %v, want [valve-2]", releaser.released)
	}
}

func TestReconcile_IdenticalResultIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t, newStubRepository())
	r := NewReconciler(reg, nil)
	ctx := context.Background()

	valves := []Valve{
		discoveredValve("valve-1", "Front Lawn", "station-a"),
		discoveredValve("valve-2", "Back Lawn", "station-b"),
	}
	if _, err := r.Reconcile(ctx, valves); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}

	batch, err := r.Reconcile(ctx, valves)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !batch.Empty() {
		t.Errorf("second identical run produced batch %+v, want empty", batch)
	}
}

func TestReconcile_PersistFailurePropagates(t *testing.T) {
	repo := newStubRepository()
	reg := newTestRegistry(t, repo)
	releaser := &recordReleaser{}
	r := NewReconciler(reg, releaser)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "Front Lawn", "station-a")}); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}

	repo.applyErr = context.DeadlineExceeded
	_, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-2", "Back Lawn", "station-a")})
	if err == nil {
		t.Fatal("Reconcile() error = nil, want persistence failure")
	}
	if reg.Count() != 1 {
		t.Errorf("registry count = %d, want 1 (failed batch must not mutate cache)", reg.Count())
	}
	if len(releaser.released) != 0 {
		t.Errorf("released = %v, want none on failure", releaser.released)
	}
}

func TestReconcile_StationMoveUpdatesDevice(t *testing.T) {
	reg := newTestRegistry(t, newStubRepository())
	r := NewReconciler(reg, nil)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "Front Lawn", "station-a")}); err != nil {
		t.Fatalf("seed Reconcile() error = %v", err)
	}

	batch, err := r.Reconcile(ctx, []Valve{discoveredValve("valve-1", "Front Lawn", "station-b")})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(batch.Updates) != 1 {
		t.Fatalf("batch.Updates = %d, want 1", len(batch.Updates))
	}
	d, _ := reg.Get(ctx, "valve-1")
	if d.StationID != "station-b" {
		t.Errorf("station = %q, want station-b", d.StationID)
	}
}
