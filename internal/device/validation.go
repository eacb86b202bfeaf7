package device

import (
	"fmt"
	"strings"
)

const (
	maxNameLength    = 100
	maxAddressLength = 64
	maxStateLength   = 64
)

var validKinds map[Kind]struct{}

func init() {
	validKinds = make(map[Kind]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		validKinds[k] = struct{}{}
	}
}

// ValidKind reports whether k is a known kind.
func ValidKind(k Kind) bool {
	_, ok := validKinds[k]
	return ok
}

// ValidateDevice checks a device before it is written to the catalogue.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}

	if strings.TrimSpace(d.Protocol) == "" {
		return fmt.Errorf("%w: protocol is required", ErrInvalidDevice)
	}
	if d.Address == "" || len(d.Address) > maxAddressLength {
		return fmt.Errorf("%w: address must be 1 to %d characters", ErrInvalidDevice, maxAddressLength)
	}
	if d.ID != "" && d.ID != DeviceID(d.Protocol, d.Address) {
		return fmt.Errorf("%w: id %q does not match %s", ErrInvalidDevice, d.ID, DeviceID(d.Protocol, d.Address))
	}

	if name := strings.TrimSpace(d.Name); name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidName, maxNameLength)
	}

	if !ValidKind(d.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}

	if len(d.State) > maxStateLength {
		return fmt.Errorf("%w: state exceeds %d characters", ErrInvalidDevice, maxStateLength)
	}

	return nil
}
