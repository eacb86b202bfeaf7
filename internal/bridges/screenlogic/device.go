package screenlogic

import (
	"context"
	"sync"
)

// Device is a named, typed view of one snapshot value.
//
// A device keeps its identity (key, name, kind) for the life of the Bridge;
// refreshes only replace its reading.
type Device interface {
	// Key is the registry key, e.g. "air_temperature" or "502".
	Key() string

	// Name is the display label.
	Name() string

	// Kind is the device variant.
	Kind() Kind

	// Reading returns the latest value.
	Reading() Reading

	// State renders the latest value for display.
	State() string
}

// circuitCommander switches circuits; the Bridge implements it.
type circuitCommander interface {
	SetCircuitState(ctx context.Context, circuitID int32, state uint32) error
}

// Sensor presents a numeric or binary reading.
//
// Thread Safety: All methods are safe for concurrent use.
type Sensor struct {
	key string

	mu      sync.RWMutex
	reading Reading
}

// Ensure Sensor implements Device.
var _ Device = (*Sensor)(nil)

func newSensor(key string, r Reading) *Sensor {
	return &Sensor{key: key, reading: r}
}

// Key returns the registry key.
func (s *Sensor) Key() string { return s.key }

// Name returns the display label.
func (s *Sensor) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading.Label
}

// Kind returns KindSensor or KindBinarySensor.
func (s *Sensor) Kind() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading.Kind
}

// Reading returns the latest value.
func (s *Sensor) Reading() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading
}

// State renders the value: binary sensors as On/Off/Unknown, sensors with a
// unit as "value unit", anything else as the bare value.
func (s *Sensor) State() string {
	return renderReading(s.Reading())
}

func (s *Sensor) update(r Reading) {
	s.mu.Lock()
	s.reading = r
	s.mu.Unlock()
}

// Switch presents a circuit that can be turned on and off.
//
// Thread Safety: All methods are safe for concurrent use.
type Switch struct {
	id    int32
	key   string
	owner circuitCommander

	mu      sync.RWMutex
	reading Reading
}

// Ensure Switch implements Device.
var _ Device = (*Switch)(nil)

func newSwitch(id int32, r Reading, owner circuitCommander) *Switch {
	return &Switch{id: id, key: CircuitKey(id), owner: owner, reading: r}
}

// ID returns the circuit id.
func (s *Switch) ID() int32 { return s.id }

// Key returns the registry key.
func (s *Switch) Key() string { return s.key }

// Name returns the circuit name.
func (s *Switch) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading.Label
}

// Kind returns KindSwitch.
func (s *Switch) Kind() Kind { return KindSwitch }

// Reading returns the latest value.
func (s *Switch) Reading() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading
}

// State renders the run state as On, Off or Unknown.
func (s *Switch) State() string {
	return OnOff(s.Reading().Raw)
}

// IsOn reports whether the circuit is running.
func (s *Switch) IsOn() bool {
	return s.Reading().Raw == 1
}

// Toggle switches the circuit to the opposite of its cached state and waits
// for the controller to acknowledge.
func (s *Switch) Toggle(ctx context.Context) error {
	var next uint32 = 1
	if s.IsOn() {
		next = 0
	}
	return s.owner.SetCircuitState(ctx, s.id, next)
}

func (s *Switch) update(r Reading) {
	s.mu.Lock()
	s.reading = r
	s.mu.Unlock()
}

func renderReading(r Reading) string {
	switch {
	case r.Kind == KindBinarySensor || r.Kind == KindSwitch:
		return OnOff(r.Raw)
	case r.Format == FormatHeatMode:
		return HeatModeName(r.Raw)
	case r.Unit != "":
		return r.Value() + " " + r.Unit
	default:
		return r.Value()
	}
}
