package screenlogic

import (
	"fmt"
	"maps"
)

// Smallest encoded sizes of the repeated config records: an empty name
// still carries its length word.
const (
	minCircuitRecord = 4 + 4 + 8 + 2 + 2
	minColorRecord   = 4 + 3*4
)

// DecodeConfig parses a configuration answer payload.
//
// Circuits are merged into those of prev: a circuit seen before is replaced,
// a new one is added and one missing from this answer is kept. The colour
// table is replaced wholesale. A truncated payload aborts the whole decode.
//
// Parameters:
//   - payload: Config answer payload (header stripped)
//   - prev: Previously decoded configuration, zero value if none
//
// Returns:
//   - Config: The merged configuration with Loaded set
//   - error: ErrTruncatedPayload if any field runs past the payload
func DecodeConfig(payload []byte, prev Config) (Config, error) {
	c := &cursor{buf: payload}
	next := Config{Loaded: true}

	next.ControllerID = c.uint32()
	next.MinSetPoint[0] = c.uint8()
	next.MaxSetPoint[0] = c.uint8()
	next.MinSetPoint[1] = c.uint8()
	next.MaxSetPoint[1] = c.uint8()
	next.IsCelsius = c.uint8() != 0
	next.ControllerType = c.uint8()
	next.HardwareType = c.uint8()
	next.ControllerBuffer = c.uint8()
	next.EquipmentFlags = c.int32()
	next.GenericCircuitName = c.string()

	circuitCount := c.uint32()
	c.expect(circuitCount, minCircuitRecord)
	circuits := make([]Circuit, 0, min(circuitCount, 256))
	for range circuitCount {
		circuit := decodeCircuit(c)
		if c.err != nil {
			break
		}
		circuits = append(circuits, circuit)
	}

	colorCount := c.uint32()
	c.expect(colorCount, minColorRecord)
	colors := make([]Color, 0, min(colorCount, 64))
	for range colorCount {
		color := Color{Name: c.string(), R: c.uint32(), G: c.uint32(), B: c.uint32()}
		if c.err != nil {
			break
		}
		colors = append(colors, color)
	}

	for i := range next.Pumps {
		next.Pumps[i] = c.uint8()
	}
	next.InterfaceTabFlags = c.uint32()
	next.ShowAlarms = c.uint32()

	if c.err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", c.err)
	}

	next.Circuits = maps.Clone(prev.Circuits)
	if next.Circuits == nil {
		next.Circuits = make(map[int32]Circuit, len(circuits))
	}
	for _, circuit := range circuits {
		next.Circuits[circuit.ID] = circuit
	}
	next.Colors = colors

	return next, nil
}

func decodeCircuit(c *cursor) Circuit {
	circuit := Circuit{
		ID:   c.int32(),
		Name: c.string(),
	}
	circuit.NameIndex = c.uint8()
	circuit.Function = c.uint8()
	circuit.Interface = c.uint8()
	circuit.Flags = c.uint8()
	circuit.ColorSet = c.uint8()
	circuit.ColorPosition = c.uint8()
	circuit.ColorStagger = c.uint8()
	circuit.DeviceID = c.uint8()
	circuit.DefaultRuntime = c.uint16()
	c.skip(2)
	return circuit
}
