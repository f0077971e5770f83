package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// EventType classifies a registry change.
type EventType string

// Registry event types.
const (
	EventRegistered   EventType = "registered"
	EventUpdated      EventType = "updated"
	EventRemoved      EventType = "removed"
	EventStateChanged EventType = "state_changed"
)

// Event describes a single registry change. The Device field is a copy;
// subscribers may hold it without racing the cache.
type Event struct {
	Type   EventType `json:"type"`
	Device Device    `json:"device"`
}

// Batch is one reconciliation outcome applied to the registry.
type Batch struct {
	// Adds are valves seen for the first time.
	Adds []Device

	// Updates are existing devices whose display name (or station)
	// changed remotely. The registered handle stays intact.
	Updates []Device

	// Removes are device ids whose valve disappeared from the catalog.
	Removes []string
}

// Empty reports whether the batch changes nothing.
func (b Batch) Empty() bool {
	return len(b.Adds) == 0 && len(b.Updates) == 0 && len(b.Removes) == 0
}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups
// plus change-event fan-out for the API, MQTT, and WebSocket surfaces.
//
// All public methods are thread-safe. The cache is populated on startup
// via Load() and mutated only through Apply() and SetState().
type Registry struct {
	repo   Repository
	cache  map[string]*Device
	mu     sync.RWMutex
	logger Logger

	subscribers []func(Event)
	subMu       sync.RWMutex
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe registers a callback for registry change events.
// Callbacks run synchronously after the mutation commits, outside the
// cache lock; they must not call back into the registry's write path.
func (r *Registry) Subscribe(fn func(Event)) {
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.subMu.Unlock()
}

// Load populates the cache from the repository.
// This should be called once on application startup.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.Clone()
	}

	r.logger.Info("device registry loaded", "count", len(devices))
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()

	if ok {
		return cached.Clone(), nil
	}

	// Fall back to the repository (a device persisted before the cache
	// was loaded).
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = device.Clone()
	r.mu.Unlock()

	return device, nil
}

// List retrieves all devices as copies, in no particular order.
func (r *Registry) List(_ context.Context) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.Clone())
	}
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// IDs returns the ids of all registered devices.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	return ids
}

// Apply commits a reconciliation batch: persist first, then mutate the
// cache under one lock so readers see either the old catalog or the new
// one, never a half-applied mix.
//
// Existing cache entries are updated in place (name, station), which
// keeps the registered handle valid for any facade bound to the id.
func (r *Registry) Apply(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}

	upserts := make([]Device, 0, len(batch.Adds)+len(batch.Updates))
	upserts = append(upserts, batch.Adds...)
	upserts = append(upserts, batch.Updates...)

	if err := r.repo.ApplyBatch(ctx, upserts, batch.Removes); err != nil {
		return fmt.Errorf("persisting registry batch: %w", err)
	}

	events := make([]Event, 0, len(upserts)+len(batch.Removes))

	r.mu.Lock()
	for i := range batch.Adds {
		d := batch.Adds[i]
		r.cache[d.ID] = d.Clone()
		events = append(events, Event{Type: EventRegistered, Device: d})
	}
	for i := range batch.Updates {
		u := batch.Updates[i]
		if existing, ok := r.cache[u.ID]; ok {
			existing.Name = u.Name
			existing.StationID = u.StationID
			existing.UpdatedAt = u.UpdatedAt
			events = append(events, Event{Type: EventUpdated, Device: *existing.Clone()})
		} else {
			// Update for an id we never cached: treat as registration.
			r.cache[u.ID] = u.Clone()
			events = append(events, Event{Type: EventRegistered, Device: u})
		}
	}
	for _, id := range batch.Removes {
		if existing, ok := r.cache[id]; ok {
			events = append(events, Event{Type: EventRemoved, Device: *existing.Clone()})
			delete(r.cache, id)
		}
	}
	r.mu.Unlock()

	r.logger.Info("registry batch applied",
		"added", len(batch.Adds),
		"updated", len(batch.Updates),
		"removed", len(batch.Removes),
	)

	r.publish(events)
	return nil
}

// SetState replaces the mirrored state of a device.
// The registry is not authoritative over the valve; this records what the
// bridge last observed or commanded.
func (r *Registry) SetState(ctx context.Context, id string, state map[string]any) error {
	if err := r.repo.UpdateState(ctx, id, state); err != nil {
		return err
	}

	var event *Event
	r.mu.Lock()
	if existing, ok := r.cache[id]; ok {
		existing.State = state
		existing.UpdatedAt = time.Now().UTC()
		event = &Event{Type: EventStateChanged, Device: *existing.Clone()}
	}
	r.mu.Unlock()

	if event != nil {
		r.publish([]Event{*event})
	}
	return nil
}

// publish fans events out to subscribers.
func (r *Registry) publish(events []Event) {
	if len(events) == 0 {
		return
	}

	r.subMu.RLock()
	subs := r.subscribers
	r.subMu.RUnlock()

	for _, fn := range subs {
		for _, ev := range events {
			fn(ev)
		}
	}
}
