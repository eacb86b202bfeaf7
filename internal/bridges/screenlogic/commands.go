package screenlogic

import (
	"fmt"
	"maps"
	"slices"
)

// LoginPayload builds the login query payload for a password.
//
// Returns:
//   - []byte: Payload for an OpLoginQuery message
//   - error: ErrInvalidPassword if the password is empty or too long
func LoginPayload(password string) ([]byte, error) {
	if password == "" || len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: length %d not in 1..%d", ErrInvalidPassword, len(password), MaxPasswordLength)
	}

	w := &writer{}
	w.uint32(loginSchema)
	w.uint32(loginConnectionType)
	w.raw(EncodeString(ClientIdentity))
	w.raw(EncodeString(password))
	w.uint8(0)
	w.uint32(loginPID)
	return w.bytes(), nil
}

// ConfigQueryPayload builds the configuration query payload.
func ConfigQueryPayload() []byte {
	w := &writer{}
	w.uint32(0)
	w.uint32(0)
	return w.bytes()
}

// StatusQueryPayload builds the status query payload.
func StatusQueryPayload() []byte {
	w := &writer{}
	w.uint32(0)
	return w.bytes()
}

// ButtonPressPayload builds the payload that sets a circuit on (1) or off (0).
func ButtonPressPayload(circuitID int32, state uint32) []byte {
	w := &writer{}
	w.uint32(0)
	w.int32(circuitID)
	w.uint32(state)
	return w.bytes()
}

// ParseLoginPayload extracts the password from a login query payload.
func ParseLoginPayload(payload []byte) (string, error) {
	c := &cursor{buf: payload}
	c.skip(8)
	_ = c.string()
	password := c.string()
	if c.err != nil {
		return "", fmt.Errorf("parsing login: %w", c.err)
	}
	return password, nil
}

// ParseButtonPressPayload extracts the circuit id and requested state from a
// button press query payload.
func ParseButtonPressPayload(payload []byte) (int32, uint32, error) {
	c := &cursor{buf: payload}
	c.skip(4)
	id := c.int32()
	state := c.uint32()
	if c.err != nil {
		return 0, 0, fmt.Errorf("parsing button press: %w", c.err)
	}
	return id, state, nil
}

// VersionAnswerPayload encodes a firmware version answer.
func VersionAnswerPayload(version string) []byte {
	return encodeAnswerString(version)
}

// ParseVersionPayload decodes a firmware version answer.
func ParseVersionPayload(payload []byte) (string, error) {
	version, _, err := DecodeString(payload, 0)
	if err != nil {
		return "", fmt.Errorf("decoding version: %w", err)
	}
	return version, nil
}

// ConfigAnswerPayload encodes cfg the way the controller answers a config
// query. Circuits are written in ascending id order. DecodeConfig with an
// empty previous config returns cfg unchanged.
func ConfigAnswerPayload(cfg Config) []byte {
	w := &writer{}
	w.uint32(cfg.ControllerID)
	w.uint8(cfg.MinSetPoint[0])
	w.uint8(cfg.MaxSetPoint[0])
	w.uint8(cfg.MinSetPoint[1])
	w.uint8(cfg.MaxSetPoint[1])
	w.uint8(boolByte(cfg.IsCelsius))
	w.uint8(cfg.ControllerType)
	w.uint8(cfg.HardwareType)
	w.uint8(cfg.ControllerBuffer)
	w.int32(cfg.EquipmentFlags)
	w.raw(encodeAnswerString(cfg.GenericCircuitName))

	w.uint32(uint32(len(cfg.Circuits))) //nolint:gosec // circuit tables are small
	for _, id := range slices.Sorted(maps.Keys(cfg.Circuits)) {
		circuit := cfg.Circuits[id]
		w.int32(circuit.ID)
		w.raw(encodeAnswerString(circuit.Name))
		w.uint8(circuit.NameIndex)
		w.uint8(circuit.Function)
		w.uint8(circuit.Interface)
		w.uint8(circuit.Flags)
		w.uint8(circuit.ColorSet)
		w.uint8(circuit.ColorPosition)
		w.uint8(circuit.ColorStagger)
		w.uint8(circuit.DeviceID)
		w.uint16(circuit.DefaultRuntime)
		w.uint16(0)
	}

	w.uint32(uint32(len(cfg.Colors))) //nolint:gosec // colour tables are small
	for _, color := range cfg.Colors {
		w.raw(encodeAnswerString(color.Name))
		w.uint32(color.R)
		w.uint32(color.G)
		w.uint32(color.B)
	}

	w.raw(cfg.Pumps[:])
	w.uint32(cfg.InterfaceTabFlags)
	w.uint32(cfg.ShowAlarms)
	return w.bytes()
}

// StatusAnswerPayload encodes st the way the controller answers a status
// query. Labels, units and kinds are not on the wire; DecodeStatus derives
// them again from the configuration.
func StatusAnswerPayload(st Status) []byte {
	w := &writer{}
	w.uint32(st.OK)
	w.uint8(st.FreezeMode)
	w.uint8(st.Remotes)
	w.uint8(st.PoolDelay)
	w.uint8(st.SpaDelay)
	w.uint8(st.CleanerDelay)
	w.raw(make([]byte, statusReservedBytes))
	w.int32(st.AirTemperature.Raw)

	w.uint32(uint32(len(st.Bodies))) //nolint:gosec // at most a handful of bodies
	for _, body := range st.Bodies {
		w.uint32(uint32(body.Type))
		w.int32(body.CurrentTemperature.Raw)
		w.int32(body.HeatStatus.Raw)
		w.int32(body.HeatSetPoint.Raw)
		w.int32(body.CoolSetPoint.Raw)
		w.int32(body.HeatMode.Raw)
	}

	w.uint32(uint32(len(st.Circuits))) //nolint:gosec // circuit tables are small
	for _, id := range slices.Sorted(maps.Keys(st.Circuits)) {
		state := st.Circuits[id]
		w.int32(state.ID)
		w.uint32(state.State)
		w.uint8(state.ColorSet)
		w.uint8(state.ColorPosition)
		w.uint8(state.ColorStagger)
		w.uint8(state.Delay)
	}

	chem := st.Chemistry
	for _, r := range []Reading{chem.PH, chem.ORP, chem.Saturation, chem.SaltPPM, chem.PHTankLevel, chem.ORPTankLevel, chem.Alarms} {
		w.int32(r.Raw)
	}
	return w.bytes()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
