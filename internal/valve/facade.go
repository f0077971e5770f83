package valve

import (
	"context"
	"sync"

	"github.com/WVandergrift/rachio-bridge/internal/rachio"
)

// Commander issues watering commands for a valve id.
// Implemented by the discovery service, which binds the current
// credential to the rachio client.
type Commander interface {
	StartWatering(ctx context.Context, valveID string, durationSeconds int) error
	StopWatering(ctx context.Context, valveID string) error
}

// Facade is the host-visible on/off handle for a single valve.
//
// Both commands are fire-and-forget with respect to local state: the
// facade issues the remote command and reports the outcome, nothing more.
type Facade struct {
	valveID   string
	commander Commander
}

// NewFacade binds a facade to a valve id and commander.
func NewFacade(valveID string, commander Commander) *Facade {
	return &Facade{
		valveID:   valveID,
		commander: commander,
	}
}

// ID returns the bound valve id.
func (f *Facade) ID() string {
	return f.valveID
}

// TurnOn starts watering with the fixed default duration.
// Returns ErrNotBound if the facade has no valve identity.
func (f *Facade) TurnOn(ctx context.Context) error {
	if f.valveID == "" {
		return ErrNotBound
	}
	return f.commander.StartWatering(ctx, f.valveID, rachio.DefaultWateringDuration)
}

// TurnOnFor starts watering for an explicit duration in seconds.
// Non-positive durations fall back to the default.
func (f *Facade) TurnOnFor(ctx context.Context, durationSeconds int) error {
	if f.valveID == "" {
		return ErrNotBound
	}
	if durationSeconds <= 0 {
		durationSeconds = rachio.DefaultWateringDuration
	}
	return f.commander.StartWatering(ctx, f.valveID, durationSeconds)
}

// TurnOff stops watering. The command is issued regardless of the
// valve's last known state; stopping a stopped valve is the vendor's
// problem to tolerate.
func (f *Facade) TurnOff(ctx context.Context) error {
	if f.valveID == "" {
		return ErrNotBound
	}
	return f.commander.StopWatering(ctx, f.valveID)
}

// Provider hands out live facades by device id.
//
// It guarantees handle identity: Get for an id returns the same Facade
// instance until Release discards it. Safe for concurrent use.
type Provider struct {
	commander Commander
	facades   map[string]*Facade
	mu        sync.Mutex
}

// NewProvider creates an empty facade provider.
func NewProvider(commander Commander) *Provider {
	return &Provider{
		commander: commander,
		facades:   make(map[string]*Facade),
	}
}

// Get returns the facade for a device id, creating it on first use.
func (p *Provider) Get(valveID string) *Facade {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.facades[valveID]; ok {
		return f
	}
	f := NewFacade(valveID, p.commander)
	p.facades[valveID] = f
	return f
}

// Release discards the facade for a device id.
// Called when the host drops a device (e.g. its valve vanished remotely).
func (p *Provider) Release(valveID string) {
	p.mu.Lock()
	delete(p.facades, valveID)
	p.mu.Unlock()
}

// Count returns the number of live facades.
func (p *Provider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.facades)
}
