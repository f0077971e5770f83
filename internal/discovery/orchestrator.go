package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/WVandergrift/rachio-bridge/internal/rachio"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CatalogClient is the read-only surface of the vendor cloud the
// orchestrator walks. Satisfied by *rachio.Client.
type CatalogClient interface {
	PersonInfo(ctx context.Context, credential string) (rachio.PersonInfo, error)
	ListBaseStations(ctx context.Context, credential, userID string) ([]rachio.BaseStation, error)
	ListValves(ctx context.Context, credential, stationID string) ([]rachio.Valve, error)
}

// Valve is a discovered valve together with the station it hangs off.
type Valve struct {
	rachio.Valve
	StationID string
}

// Orchestrator produces the flat set of valves reachable under a
// credential. It owns only transient traversal state; each Run is
// independent.
type Orchestrator struct {
	catalog CatalogClient
	logger  Logger
}

// NewOrchestrator creates an orchestrator over a catalog client.
func NewOrchestrator(catalog CatalogClient) *Orchestrator {
	return &Orchestrator{
		catalog: catalog,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// Run walks user -> stations -> valves and returns the flattened,
// deduplicated valve set.
//
// An empty credential is the "not configured yet" steady state: the run
// returns an empty result immediately, issuing no HTTP calls, with no
// error. Any failure during the walk aborts the whole run: there is no
// partial result. Cross-station order of the returned valves is not
// meaningful.
func (o *Orchestrator) Run(ctx context.Context, credential string) ([]Valve, error) {
	if credential == "" {
		o.logger.Debug("discovery skipped: no credential configured")
		return nil, nil
	}

	person, err := o.catalog.PersonInfo(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	stations, err := o.catalog.ListBaseStations(ctx, credential, person.ID)
	if err != nil {
		return nil, fmt.Errorf("listing base stations: %w", err)
	}
	if len(stations) == 0 {
		o.logger.Info("discovery found no base stations", "user_id", person.ID)
		return nil, nil
	}

	// Fan out the per-station valve listings. Station counts are small,
	// so the width is unbounded. The first failure cancels the rest and
	// fails the run.
	perStation := make([][]Valve, len(stations))
	g, gctx := errgroup.WithContext(ctx)
	for i, station := range stations {
		i, station := i, station
		g.Go(func() error {
			valves, err := o.catalog.ListValves(gctx, credential, station.ID)
			if err != nil {
				return fmt.Errorf("listing valves for station %s: %w", station.ID, err)
			}
			flat := make([]Valve, 0, len(valves))
			for _, v := range valves {
				flat = append(flat, Valve{Valve: v, StationID: station.ID})
			}
			perStation[i] = flat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Flatten, keeping the first occurrence of each id. The vendor
	// guarantees globally unique valve ids; dedupe anyway so a
	// misbehaving cloud cannot register one valve twice.
	seen := make(map[string]bool)
	var result []Valve
	for _, valves := range perStation {
		for _, v := range valves {
			if v.ID == "" || seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			result = append(result, v)
		}
	}

	o.logger.Info("discovery walk complete",
		"user_id", person.ID,
		"stations", len(stations),
		"valves", len(result),
	)
	return result, nil
}
