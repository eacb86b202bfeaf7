package device

import "time"

// Kind classifies a pool device the way the bridge renders it.
type Kind string

// Device kinds.
const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindSwitch       Kind = "switch"
)

// AllKinds returns every valid Kind.
func AllKinds() []Kind {
	return []Kind{KindSensor, KindBinarySensor, KindSwitch}
}

// Device is the latest observed state of one pool device.
// This matches the pool_devices table in migrations/20261019_120000_pool_devices.up.sql.
type Device struct {
	// ID is "{protocol}:{address}", e.g. "screenlogic:505".
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	// Address is the bridge's device key: a circuit id or a reading name.
	Address string `json:"address"`

	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// State is the rendered state ("On", "7.50", "78 °F").
	State string  `json:"state"`
	Raw   int64   `json:"raw"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`

	StateUpdatedAt time.Time `json:"state_updated_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeviceID builds the catalogue ID for a bridge device.
func DeviceID(protocol, address string) string {
	return protocol + ":" + address
}

// Clone returns an independent copy. Device has no reference fields, so
// this is a value copy; it exists so cache code reads the same as it would
// if that ever changes.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// IsSwitch reports whether the device accepts on/off commands.
func (d *Device) IsSwitch() bool {
	return d.Kind == KindSwitch
}
