package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WVandergrift/rachio-bridge/internal/device"
)

// Telemetry receives operational measurements from the service.
// Implemented by the InfluxDB client; a no-op sink is used when
// telemetry is disabled.
type Telemetry interface {
	// DiscoveryRun records one completed (or failed) discovery run.
	DiscoveryRun(runID, outcome string, valves int, duration time.Duration)

	// CommandResult records the outcome of a valve command.
	CommandResult(valveID, command string, success bool)
}

// noopTelemetry discards all measurements.
type noopTelemetry struct{}

func (noopTelemetry) DiscoveryRun(string, string, int, time.Duration) {}
func (noopTelemetry) CommandResult(string, string, bool)              {}

// CommandClient is the command surface of the vendor cloud.
// Satisfied by *rachio.Client.
type CommandClient interface {
	StartWatering(ctx context.Context, credential, valveID string, durationSeconds int) error
	StopWatering(ctx context.Context, credential, valveID string) error
}

// Service ties the discovery pipeline together: it owns the current
// credential, serializes discovery runs, and binds the credential to
// valve commands (it is the valve.Commander the facades delegate to).
type Service struct {
	orchestrator *Orchestrator
	reconciler   *Reconciler
	creds        *CredentialStore
	commands     CommandClient
	registry     *device.Registry
	logger       Logger
	telemetry    Telemetry

	// Single-flight guard: one run at a time; an update arriving
	// mid-run queues exactly one follow-up that reads the latest
	// credential, so the last update wins.
	runMu   sync.Mutex
	running bool
	queued  bool
}

// NewService assembles the discovery service.
func NewService(orchestrator *Orchestrator, reconciler *Reconciler, creds *CredentialStore, commands CommandClient, registry *device.Registry) *Service {
	return &Service{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		creds:        creds,
		commands:     commands,
		registry:     registry,
		logger:       noopLogger{},
		telemetry:    noopTelemetry{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetTelemetry sets the telemetry sink for the service.
func (s *Service) SetTelemetry(t Telemetry) {
	s.telemetry = t
}

// Credential returns the current credential. Exposed for the settings
// API's masked status response.
func (s *Service) Credential() string {
	return s.creds.Get()
}

// UpdateCredential installs a new credential and triggers a discovery
// run. The persistence error (if any) is returned; discovery failures
// are not - they are logged, counted, and contained to the run.
func (s *Service) UpdateCredential(ctx context.Context, credential string) error {
	if err := s.creds.Set(ctx, credential); err != nil {
		return err
	}
	s.logger.Info("credential updated, triggering discovery",
		"configured", credential != "",
	)
	s.Sync(ctx)
	return nil
}

// Sync runs discovery with the current credential. If a run is already
// in flight, one follow-up run is queued and this call returns; the
// follow-up re-reads the credential, superseding the in-flight run's
// view.
func (s *Service) Sync(ctx context.Context) {
	s.runMu.Lock()
	if s.running {
		s.queued = true
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()

	for {
		s.runOnce(ctx)

		s.runMu.Lock()
		if !s.queued {
			s.running = false
			s.runMu.Unlock()
			return
		}
		s.queued = false
		s.runMu.Unlock()
	}
}

// runOnce executes a single discovery run end to end.
// Errors never escape: a failed run changes nothing and the process
// carries on.
func (s *Service) runOnce(ctx context.Context) {
	runID := uuid.NewString()
	start := time.Now()
	credential := s.creds.Get()

	discovered, err := s.orchestrator.Run(ctx, credential)
	if err != nil {
		s.logger.Error("discovery run failed, no registration changes",
			"run_id", runID,
			"error", err,
		)
		s.telemetry.DiscoveryRun(runID, "failed", 0, time.Since(start))
		return
	}

	batch, err := s.reconciler.Reconcile(ctx, discovered)
	if err != nil {
		s.logger.Error("reconciliation failed",
			"run_id", runID,
			"error", err,
		)
		s.telemetry.DiscoveryRun(runID, "reconcile_failed", len(discovered), time.Since(start))
		return
	}

	s.logger.Info("discovery run complete",
		"run_id", runID,
		"valves", len(discovered),
		"added", len(batch.Adds),
		"updated", len(batch.Updates),
		"removed", len(batch.Removes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.telemetry.DiscoveryRun(runID, "ok", len(discovered), time.Since(start))
}

// StartWatering implements valve.Commander with the current credential.
func (s *Service) StartWatering(ctx context.Context, valveID string, durationSeconds int) error {
	err := s.commands.StartWatering(ctx, s.creds.Get(), valveID, durationSeconds)
	s.telemetry.CommandResult(valveID, "start", err == nil)
	if err != nil {
		s.logger.Warn("start watering failed", "valve_id", valveID, "error", err)
		return err
	}
	s.mirrorCommand(ctx, valveID, "start_watering")
	return nil
}

// StopWatering implements valve.Commander with the current credential.
func (s *Service) StopWatering(ctx context.Context, valveID string) error {
	err := s.commands.StopWatering(ctx, s.creds.Get(), valveID)
	s.telemetry.CommandResult(valveID, "stop", err == nil)
	if err != nil {
		s.logger.Warn("stop watering failed", "valve_id", valveID, "error", err)
		return err
	}
	s.mirrorCommand(ctx, valveID, "stop_watering")
	return nil
}

// mirrorCommand records the accepted command on the device. The cloud
// does not report live valve state, so this is the last accepted
// command, not a confirmed on/off reading.
func (s *Service) mirrorCommand(ctx context.Context, valveID, command string) {
	state := map[string]any{
		"last_command":    command,
		"last_command_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.registry.SetState(ctx, valveID, state); err != nil {
		s.logger.Warn("recording command state failed", "valve_id", valveID, "error", err)
	}
}
