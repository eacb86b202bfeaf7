package screenlogic

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Kind tags a snapshot value with the device variant that presents it.
type Kind int

// Device kinds. KindNone values are decoded but never become devices.
const (
	KindNone Kind = iota
	KindSensor
	KindBinarySensor
	KindSwitch
)

// String returns the kind name used in JSON and MQTT payloads.
func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindBinarySensor:
		return "binary_sensor"
	case KindSwitch:
		return "switch"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// hundredths is the scale of pH and saturation index values.
const hundredths = 100

// Reading is an externally observable leaf value with its presentation:
// label, raw wire value, optional unit and device kind.
type Reading struct {
	Label string `json:"label"`
	Raw   int32  `json:"raw"`

	// Scale divides Raw for display; zero means unscaled.
	Scale  int32  `json:"scale,omitempty"`
	Unit   string `json:"unit,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
	Format Format `json:"format,omitempty"`
}

// Format selects how a reading renders as a device state.
type Format uint8

const (
	// FormatValue renders the scaled value and unit.
	FormatValue Format = iota
	// FormatHeatMode renders the heater mode name.
	FormatHeatMode
)

// Float returns the scaled numeric value.
func (r Reading) Float() float64 {
	if r.Scale > 1 {
		return float64(r.Raw) / float64(r.Scale)
	}
	return float64(r.Raw)
}

// Value formats the scaled value without its unit. Hundredths keep two
// decimals so a raw pH of 750 reads "7.50".
func (r Reading) Value() string {
	if r.Scale > 1 {
		return strconv.FormatFloat(r.Float(), 'f', 2, 64)
	}
	return strconv.Itoa(int(r.Raw))
}

// Circuit is the configuration of one circuit as reported by the controller.
type Circuit struct {
	ID             int32  `json:"id"`
	Name           string `json:"name"`
	NameIndex      uint8  `json:"name_index"`
	Function       uint8  `json:"function"`
	Interface      uint8  `json:"interface"`
	Flags          uint8  `json:"flags"`
	ColorSet       uint8  `json:"color_set"`
	ColorPosition  uint8  `json:"color_position"`
	ColorStagger   uint8  `json:"color_stagger"`
	DeviceID       uint8  `json:"device_id"`
	DefaultRuntime uint16 `json:"default_runtime"`
}

// Color is one entry of the controller's light colour table.
type Color struct {
	Name string `json:"name"`
	R    uint32 `json:"r"`
	G    uint32 `json:"g"`
	B    uint32 `json:"b"`
}

// Config is the decoded controller configuration.
type Config struct {
	// Loaded is set once a configuration answer has been decoded.
	Loaded bool `json:"loaded"`

	ControllerID       uint32            `json:"controller_id"`
	MinSetPoint        [2]uint8          `json:"min_set_point"`
	MaxSetPoint        [2]uint8          `json:"max_set_point"`
	IsCelsius          bool              `json:"is_celsius"`
	ControllerType     uint8             `json:"controller_type"`
	HardwareType       uint8             `json:"hardware_type"`
	ControllerBuffer   uint8             `json:"controller_buffer"`
	EquipmentFlags     int32             `json:"equipment_flags"`
	GenericCircuitName string            `json:"generic_circuit_name"`
	Circuits           map[int32]Circuit `json:"circuits"`
	Colors             []Color           `json:"colors"`
	Pumps              [pumpSlots]uint8  `json:"pumps"`
	InterfaceTabFlags  uint32            `json:"interface_tab_flags"`
	ShowAlarms         uint32            `json:"show_alarms"`
}

// TemperatureUnit returns the display unit for temperatures.
func (c Config) TemperatureUnit() string {
	if c.IsCelsius {
		return "°C"
	}
	return "°F"
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Circuits = maps.Clone(c.Circuits)
	c.Colors = slices.Clone(c.Colors)
	return c
}

// Body is one body of water (pool or spa) from a status answer.
type Body struct {
	Type               BodyType `json:"type"`
	CurrentTemperature Reading  `json:"current_temperature"`
	HeatStatus         Reading  `json:"heat_status"`
	HeatSetPoint       Reading  `json:"heat_set_point"`
	CoolSetPoint       Reading  `json:"cool_set_point"`
	HeatMode           Reading  `json:"heat_mode"`
}

// fields lists the body readings with the key each is registered under.
func (b Body) fields() []keyedField {
	return []keyedField{
		{"current_temperature", b.CurrentTemperature},
		{"heat_status", b.HeatStatus},
		{"heat_set_point", b.HeatSetPoint},
		{"cool_set_point", b.CoolSetPoint},
		{"heat_mode", b.HeatMode},
	}
}

// CircuitState is the run state of one circuit from a status answer.
type CircuitState struct {
	ID            int32  `json:"id"`
	State         uint32 `json:"state"`
	ColorSet      uint8  `json:"color_set"`
	ColorPosition uint8  `json:"color_position"`
	ColorStagger  uint8  `json:"color_stagger"`
	Delay         uint8  `json:"delay"`
}

// Chemistry holds the chemistry controller readings.
type Chemistry struct {
	PH           Reading `json:"ph"`
	ORP          Reading `json:"orp"`
	Saturation   Reading `json:"saturation"`
	SaltPPM      Reading `json:"salt_ppm"`
	PHTankLevel  Reading `json:"ph_tank_level"`
	ORPTankLevel Reading `json:"orp_tank_level"`
	Alarms       Reading `json:"alarms"`
}

func (c Chemistry) fields() []keyedField {
	return []keyedField{
		{"ph", c.PH},
		{"orp", c.ORP},
		{"saturation", c.Saturation},
		{"salt_ppm", c.SaltPPM},
		{"ph_tank_level", c.PHTankLevel},
		{"orp_tank_level", c.ORPTankLevel},
		{"alarms", c.Alarms},
	}
}

// Status is the decoded pool status.
type Status struct {
	Loaded bool `json:"loaded"`

	OK             uint32                 `json:"ok"`
	FreezeMode     uint8                  `json:"freeze_mode"`
	Remotes        uint8                  `json:"remotes"`
	PoolDelay      uint8                  `json:"pool_delay"`
	SpaDelay       uint8                  `json:"spa_delay"`
	CleanerDelay   uint8                  `json:"cleaner_delay"`
	AirTemperature Reading                `json:"air_temperature"`
	Bodies         []Body                 `json:"bodies"`
	Circuits       map[int32]CircuitState `json:"circuits"`
	Chemistry      Chemistry              `json:"chemistry"`
}

// Clone returns a deep copy.
func (s Status) Clone() Status {
	s.Bodies = slices.Clone(s.Bodies)
	s.Circuits = maps.Clone(s.Circuits)
	return s
}

// Snapshot is the merged view of the controller: firmware version,
// configuration and the latest status.
type Snapshot struct {
	Version string `json:"version"`
	Config  Config `json:"config"`
	Status  Status `json:"status"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Version: s.Version,
		Config:  s.Config.Clone(),
		Status:  s.Status.Clone(),
	}
}

// KeyedReading is a device-tagged reading with its registry key.
type KeyedReading struct {
	// Key identifies the device across refreshes.
	Key string

	// CircuitID is set for switch readings.
	CircuitID int32

	Reading
}

type keyedField struct {
	key     string
	reading Reading
}

// Readings lists every value carrying a device kind, in a stable order:
// air temperature, body fields, chemistry, then circuits by id.
//
// Body keys carry the body index ("heat_status_1") so the two bodies never
// collide; circuits are keyed by their decimal id.
func (s Snapshot) Readings() []KeyedReading {
	var out []KeyedReading
	add := func(key string, r Reading) {
		if r.Kind != KindNone {
			out = append(out, KeyedReading{Key: key, Reading: r})
		}
	}

	if !s.Status.Loaded {
		return nil
	}

	add("air_temperature", s.Status.AirTemperature)
	for i, body := range s.Status.Bodies {
		for _, f := range body.fields() {
			add(fmt.Sprintf("%s_%d", f.key, i), f.reading)
		}
	}
	for _, f := range s.Status.Chemistry.fields() {
		add(f.key, f.reading)
	}

	for _, id := range slices.Sorted(maps.Keys(s.Status.Circuits)) {
		out = append(out, KeyedReading{
			Key:       CircuitKey(id),
			CircuitID: id,
			Reading:   s.circuitReading(id),
		})
	}

	return out
}

// circuitReading presents a circuit's run state as a switch reading, named
// from the configuration when the controller reported the circuit there.
func (s Snapshot) circuitReading(id int32) Reading {
	name := CircuitName(id)
	if c, ok := s.Config.Circuits[id]; ok && c.Name != "" {
		name = c.Name
	}
	return Reading{
		Label: name,
		Raw:   int32(s.Status.Circuits[id].State), //nolint:gosec // run state is 0 or 1
		Kind:  KindSwitch,
	}
}

// CircuitKey returns the registry key of a circuit.
func CircuitKey(id int32) string {
	return strconv.Itoa(int(id))
}
