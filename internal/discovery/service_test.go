package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/rachio"
)

// mockCommands records valve commands and the credential they carried.
type mockCommands struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	starts   []commandCall
	stops    []commandCall
}

type commandCall struct {
	credential string
	valveID    string
	duration   int
}

func (m *mockCommands) StartWatering(_ context.Context, credential, valveID string, durationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, commandCall{credential, valveID, durationSeconds})
	return m.startErr
}

func (m *mockCommands) StopWatering(_ context.Context, credential, valveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, commandCall{credential: credential, valveID: valveID})
	return m.stopErr
}

// recordTelemetry captures measurements for assertions.
type recordTelemetry struct {
	mu       sync.Mutex
	runs     []string
	commands []string
}

func (r *recordTelemetry) DiscoveryRun(_, outcome string, _ int, _ time.Duration) {
	r.mu.Lock()
	r.runs = append(r.runs, outcome)
	r.mu.Unlock()
}

func (r *recordTelemetry) CommandResult(valveID, command string, success bool) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
}

type serviceFixture struct {
	service  *Service
	catalog  *mockCatalog
	commands *mockCommands
	registry *device.Registry
	creds    *CredentialStore
}

func newServiceFixture(t *testing.T, catalog CatalogClient) *serviceFixture {
	t.Helper()

	reg := newTestRegistry(t, newStubRepository())
	creds := NewCredentialStore(openSettingsDB(t))
	if err := creds.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	commands := &mockCommands{}
	mock, _ := catalog.(*mockCatalog)
	svc := NewService(NewOrchestrator(catalog), NewReconciler(reg, nil), creds, commands, reg)
	return &serviceFixture{
		service:  svc,
		catalog:  mock,
		commands: commands,
		registry: reg,
		creds:    creds,
	}
}

func TestServiceUpdateCredential_TriggersDiscovery(t *testing.T) {
	catalog := &mockCatalog{
		userID:   "user-1",
		stations: []rachio.BaseStation{{ID: "station-a"}},
		valves: map[string][]rachio.Valve{
			"station-a": {{ID: "valve-1", Name: "Front Lawn"}},
		},
	}
	f := newServiceFixture(t, catalog)

	if err := f.service.UpdateCredential(context.Background(), "secret"); err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}
	if f.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", f.registry.Count())
	}
	if got := f.creds.Get(); got != "secret" {
		t.Errorf("credential = %q, want secret", got)
	}
	if catalog.lastCred != "secret" {
		t.Errorf("catalog credential = %q, want secret", catalog.lastCred)
	}
}

func TestServiceUpdateCredential_EmptySkipsWalk(t *testing.T) {
	catalog := &mockCatalog{userID: "user-1"}
	f := newServiceFixture(t, catalog)

	if err := f.service.UpdateCredential(context.Background(), ""); err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}
	if catalog.personCalls != 0 {
		t.Errorf("personCalls = %d, want 0", catalog.personCalls)
	}
}

func TestServiceSync_FailedRunChangesNothing(t *testing.T) {
	catalog := &mockCatalog{
		userID:   "user-1",
		stations: []rachio.BaseStation{{ID: "station-a"}},
		valves: map[string][]rachio.Valve{
			"station-a": {{ID: "valve-1", Name: "Front Lawn"}},
		},
	}
	f := newServiceFixture(t, catalog)
	telemetry := &recordTelemetry{}
	f.service.SetTelemetry(telemetry)
	ctx := context.Background()

	if err := f.service.UpdateCredential(ctx, "secret"); err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}

	catalog.valvesErr = map[string]error{"station-a": errors.New("station offline")}
	f.service.Sync(ctx)

	if f.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1 (failed run must not change registrations)", f.registry.Count())
	}
	if len(telemetry.runs) != 2 || telemetry.runs[1] != "failed" {
		t.Errorf("telemetry runs = %v, want [ok failed]", telemetry.runs)
	}
}

// gatedCatalog blocks each run inside PersonInfo until released, so
// tests can observe the single-flight behaviour.
type gatedCatalog struct {
	started chan string
	release chan struct{}
}

func (c *gatedCatalog) PersonInfo(_ context.Context, credential string) (rachio.PersonInfo, error) {
	c.started <- credential
	<-c.release
	return rachio.PersonInfo{ID: "user-1"}, nil
}

func (c *gatedCatalog) ListBaseStations(context.Context, string, string) ([]rachio.BaseStation, error) {
	return nil, nil
}

func (c *gatedCatalog) ListValves(context.Context, string, string) ([]rachio.Valve, error) {
	return nil, nil
}

func TestServiceSync_SingleFlightLatestCredentialWins(t *testing.T) {
	catalog := &gatedCatalog{
		started: make(chan string),
		release: make(chan struct{}, 2),
	}
	f := newServiceFixture(t, catalog)
	ctx := context.Background()

	if err := f.creds.Set(ctx, "first"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.service.Sync(ctx)
		close(done)
	}()

	if got := <-catalog.started; got != "first" {
		t.Fatalf("first run credential = %q, want first", got)
	}

	// While the first run is blocked, pile on more sync requests.
	// They must coalesce into exactly one follow-up run.
	f.service.Sync(ctx)
	f.service.Sync(ctx)
	if err := f.creds.Set(ctx, "second"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	catalog.release <- struct{}{}
	catalog.release <- struct{}{}

	if got := <-catalog.started; got != "second" {
		t.Fatalf("follow-up run credential = %q, want second", got)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sync did not return")
	}

	select {
	case cred := <-catalog.started:
		t.Fatalf("unexpected third run with credential %q", cred)
	default:
	}
}

func TestServiceStartWatering_MirrorsCommandState(t *testing.T) {
	catalog := &mockCatalog{
		userID:   "user-1",
		stations: []rachio.BaseStation{{ID: "station-a"}},
		valves: map[string][]rachio.Valve{
			"station-a": {{ID: "valve-1", Name: "Front Lawn"}},
		},
	}
	f := newServiceFixture(t, catalog)
	telemetry := &recordTelemetry{}
	f.service.SetTelemetry(telemetry)
	ctx := context.Background()

	if err := f.service.UpdateCredential(ctx, "secret"); err != nil {
		t.Fatalf("UpdateCredential() error = %v", err)
	}

	if err := f.service.StartWatering(ctx, "valve-1", 600); err != nil {
		t.Fatalf("StartWatering() error = %v", err)
	}
	if len(f.commands.starts) != 1 {
		t.Fatalf("starts = %d, want 1", len(f.commands.starts))
	}
	call := f.commands.starts[0]
	if call.credential != "secret" || call.valveID != "valve-1" || call.duration != 600 {
		t.Errorf("start call = %+v, want secret/valve-1/600", call)
	}

	d, err := f.registry.Get(ctx, "valve-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := d.State["last_command"]; got != "start_watering" {
		t.Errorf("last_command = %v, want start_watering", got)
	}
	if len(telemetry.commands) != 1 || telemetry.commands[0] != "start" {
		t.Errorf("telemetry commands = %v, want [start]", telemetry.commands)
	}
}

func TestServiceStopWatering_FailurePropagates(t *testing.T) {
	catalog := &mockCatalog{userID: "user-1"}
	f := newServiceFixture(t, catalog)
	f.commands.stopErr = rachio.ErrCommand

	err := f.service.StopWatering(context.Background(), "valve-1")
	if !errors.Is(err, rachio.ErrCommand) {
		t.Fatalf("StopWatering() error = %v, want ErrCommand", err)
	}
	if len(f.commands.stops) != 1 {
		t.Errorf("stops = %d, want 1", len(f.commands.stops))
	}
}
