package device

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the cached catalogue of pool devices.
//
// The cache is loaded once with RefreshCache and then kept in step by
// Observe, which writes through to the repository before touching the
// cache. Readers always get copies.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry backed by repo.
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

// RefreshCache reloads all devices from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	cache := make(map[string]*Device, len(devices))
	for i := range devices {
		cache[devices[i].ID] = devices[i].Clone()
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Observe records the latest state of a batch of devices. Unknown devices
// are created; known ones keep their CreatedAt. The cache is only updated
// once the repository write has succeeded.
func (r *Registry) Observe(ctx context.Context, devices []Device) error {
	if len(devices) == 0 {
		return nil
	}

	batch := slices.Clone(devices)

	r.cacheMu.RLock()
	for i := range batch {
		batch[i].ID = DeviceID(batch[i].Protocol, batch[i].Address)
		if cached, ok := r.cache[batch[i].ID]; ok {
			batch[i].CreatedAt = cached.CreatedAt
		}
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpsertBatch(ctx, batch); err != nil {
		r.logger.Error("persisting device states failed", "count", len(batch), "error", err)
		return fmt.Errorf("persisting device states: %w", err)
	}

	r.cacheMu.Lock()
	for i := range batch {
		r.cache[batch[i].ID] = batch[i].Clone()
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device states persisted", "count", len(batch))
	return nil
}

// GetDevice retrieves a device by ID, falling back to the repository on a
// cache miss. Returns ErrDeviceNotFound if it does not exist.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.Clone()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices returns all cached devices ordered by ID. An empty cache
// falls back to the repository.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) == 0 {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}
	devices := make([]Device, 0, len(r.cache))
	for _, id := range slices.Sorted(maps.Keys(r.cache)) {
		devices = append(devices, *r.cache[id].Clone())
	}
	r.cacheMu.RUnlock()

	return devices, nil
}

// ListByKind returns the devices of one kind, ordered by ID.
func (r *Registry) ListByKind(ctx context.Context, kind Kind) ([]Device, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	all, err := r.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(d Device) bool { return d.Kind != kind }), nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats summarises the cached catalogue.
type Stats struct {
	Total      int            `json:"total"`
	ByKind     map[Kind]int   `json:"by_kind"`
	ByProtocol map[string]int `json:"by_protocol"`
	SwitchesOn int            `json:"switches_on"`
}

// GetStats returns counts over the cached devices.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	s := Stats{
		Total:      len(r.cache),
		ByKind:     make(map[Kind]int),
		ByProtocol: make(map[string]int),
	}
	for _, d := range r.cache {
		s.ByKind[d.Kind]++
		s.ByProtocol[d.Protocol]++
		if d.IsSwitch() && strings.EqualFold(d.State, "on") {
			s.SwitchesOn++
		}
	}
	return s
}
