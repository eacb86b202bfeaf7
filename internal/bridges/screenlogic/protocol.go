package screenlogic

import "fmt"

// Message opcodes. Each query has exactly one answer opcode.
const (
	OpUnknownAnswer uint16 = 13

	OpChallengeQuery  uint16 = 14
	OpChallengeAnswer uint16 = 15

	OpLoginQuery  uint16 = 27
	OpLoginAnswer uint16 = 28

	OpVersionQuery  uint16 = 8120
	OpVersionAnswer uint16 = 8121

	OpStatusQuery  uint16 = 12526
	OpStatusAnswer uint16 = 12527

	OpButtonPressQuery  uint16 = 12530
	OpButtonPressAnswer uint16 = 12531

	OpConfigQuery  uint16 = 12532
	OpConfigAnswer uint16 = 12533
)

// Handshake constants.
const (
	// ConnectPreamble is written before any framed message. The controller
	// does not answer it.
	ConnectPreamble = "CONNECTSERVERHOST\r\n\r\n"

	// ClientIdentity is the client version string sent in the login payload.
	ClientIdentity = "Android"

	// DefaultPassword is accepted by controllers with no remote password set.
	DefaultPassword = "mypassword"

	// MaxPasswordLength is the longest password the controller accepts.
	MaxPasswordLength = 16

	loginSchema         = 348
	loginConnectionType = 0
	loginPID            = 2
)

// Response size caps per request type.
const (
	handshakeResponseBytes   = 48
	versionResponseBytes     = 480
	configResponseBytes      = 1024
	statusResponseBytes      = 480
	buttonPressResponseBytes = 480
)

// pumpSlots is the fixed number of pump bytes in the config answer.
const pumpSlots = 8

// maxBodies is the number of body records kept from a status answer.
const maxBodies = 2

// BodyType identifies a body of water.
type BodyType uint32

// Body types reported by the controller.
const (
	BodyPool BodyType = 0
	BodySpa  BodyType = 1
)

// String returns the display name of the body type.
func (t BodyType) String() string {
	if t == BodySpa {
		return "Spa"
	}
	return "Pool"
}

// heatModeNames indexes heater mode values.
var heatModeNames = []string{"Off", "Solar", "Solar Preferred", "Heat", "Don't Change"}

// HeatModeName returns the display name of a heater mode value.
func HeatModeName(mode int32) string {
	if mode < 0 || int(mode) >= len(heatModeNames) {
		return "Unknown"
	}
	return heatModeNames[mode]
}

// OnOff renders a binary state: 0 Off, 1 On, anything else Unknown.
func OnOff(state int32) string {
	switch state {
	case 0:
		return "Off"
	case 1:
		return "On"
	default:
		return "Unknown"
	}
}

// wellKnownCircuits names the circuits every controller generation ships with.
var wellKnownCircuits = map[int32]string{
	500: "Spa",
	501: "Cleaner",
	502: "Swim Jets",
	503: "Pool Light",
	504: "Spa Light",
	505: "Pool",
	506: "Aux 5",
	507: "Aux 6",
	508: "Aux 7",
}

// CircuitName returns the factory name for a circuit id.
func CircuitName(id int32) string {
	if name, ok := wellKnownCircuits[id]; ok {
		return name
	}
	return fmt.Sprintf("Circuit %d", id)
}
