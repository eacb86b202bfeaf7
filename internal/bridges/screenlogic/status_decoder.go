package screenlogic

import (
	"fmt"
	"maps"
)

const (
	// statusReservedBytes follow the delay flags and carry nothing.
	statusReservedBytes = 3

	minBodyRecord         = 6 * 4
	minCircuitStateRecord = 2*4 + 4
)

// DecodeStatus parses a status answer payload against a loaded configuration.
//
// The configuration supplies the temperature unit and circuit names. Every
// body the controller reports is consumed so the circuit section stays
// aligned, but only the first two (pool and spa) are kept. Circuit states
// merge into those of prev the same way config circuits do.
//
// Parameters:
//   - payload: Status answer payload (header stripped)
//   - cfg: Decoded configuration; must be loaded
//   - prev: Previously decoded status, zero value if none
//
// Returns:
//   - Status: The decoded status with Loaded set
//   - error: ErrConfigNotLoaded or ErrTruncatedPayload
func DecodeStatus(payload []byte, cfg Config, prev Status) (Status, error) {
	if !cfg.Loaded {
		return Status{}, ErrConfigNotLoaded
	}

	unit := cfg.TemperatureUnit()
	c := &cursor{buf: payload}
	next := Status{Loaded: true}

	next.OK = c.uint32()
	next.FreezeMode = c.uint8()
	next.Remotes = c.uint8()
	next.PoolDelay = c.uint8()
	next.SpaDelay = c.uint8()
	next.CleanerDelay = c.uint8()
	c.skip(statusReservedBytes)

	next.AirTemperature = Reading{
		Label: "Air Temperature",
		Raw:   c.int32(),
		Unit:  unit,
		Kind:  KindSensor,
	}

	bodyCount := c.uint32()
	c.expect(bodyCount, minBodyRecord)
	for i := range bodyCount {
		body := decodeBody(c, unit)
		if c.err != nil {
			break
		}
		if i < maxBodies {
			next.Bodies = append(next.Bodies, body)
		}
	}

	circuitCount := c.uint32()
	c.expect(circuitCount, minCircuitStateRecord)
	states := make([]CircuitState, 0, min(circuitCount, 256))
	for range circuitCount {
		state := CircuitState{
			ID:            c.int32(),
			State:         c.uint32(),
			ColorSet:      c.uint8(),
			ColorPosition: c.uint8(),
			ColorStagger:  c.uint8(),
			Delay:         c.uint8(),
		}
		if c.err != nil {
			break
		}
		states = append(states, state)
	}

	next.Chemistry = decodeChemistry(c)

	if c.err != nil {
		return Status{}, fmt.Errorf("decoding status: %w", c.err)
	}

	next.Circuits = maps.Clone(prev.Circuits)
	if next.Circuits == nil {
		next.Circuits = make(map[int32]CircuitState, len(states))
	}
	for _, state := range states {
		next.Circuits[state.ID] = state
	}

	return next, nil
}

func decodeBody(c *cursor, unit string) Body {
	bodyType := BodyType(c.uint32())
	if bodyType > BodySpa {
		bodyType = BodyPool
	}
	name := bodyType.String()

	return Body{
		Type: bodyType,
		CurrentTemperature: Reading{
			Label: "Current " + name + " Temperature",
			Raw:   c.int32(),
			Unit:  unit,
			Kind:  KindSensor,
		},
		HeatStatus: Reading{
			Label: name + " Heater",
			Raw:   c.int32(),
			Kind:  KindBinarySensor,
		},
		HeatSetPoint: Reading{
			Label: name + " Heat Set Point",
			Raw:   c.int32(),
			Unit:  unit,
			Kind:  KindSensor,
		},
		CoolSetPoint: Reading{
			Label: name + " Cool Set Point",
			Raw:   c.int32(),
			Unit:  unit,
			Kind:  KindSensor,
		},
		HeatMode: Reading{
			Label:  name + " Heater Mode",
			Raw:    c.int32(),
			Kind:   KindSensor,
			Format: FormatHeatMode,
		},
	}
}

func decodeChemistry(c *cursor) Chemistry {
	return Chemistry{
		PH:           Reading{Label: "pH", Raw: c.int32(), Scale: hundredths, Kind: KindSensor},
		ORP:          Reading{Label: "ORP", Raw: c.int32(), Kind: KindSensor},
		Saturation:   Reading{Label: "Saturation Index", Raw: c.int32(), Scale: hundredths, Kind: KindSensor},
		SaltPPM:      Reading{Label: "Salt", Raw: c.int32(), Unit: "ppm", Kind: KindSensor},
		PHTankLevel:  Reading{Label: "pH Tank Level", Raw: c.int32(), Kind: KindSensor},
		ORPTankLevel: Reading{Label: "ORP Tank Level", Raw: c.int32(), Kind: KindSensor},
		Alarms:       Reading{Label: "Chemistry Alarm", Raw: c.int32(), Kind: KindBinarySensor},
	}
}
