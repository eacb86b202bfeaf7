package screenlogic

import "errors"

// Domain errors for the ScreenLogic bridge package.
var (
	// ErrDiscoveryFailed is returned when no controller address could be resolved.
	ErrDiscoveryFailed = errors.New("screenlogic: gateway discovery failed")

	// ErrConnectFailed is returned when no resolved address accepted a TCP connection.
	ErrConnectFailed = errors.New("screenlogic: connection to gateway failed")

	// ErrHandshakeRejected is returned when the challenge or login answer
	// carries the wrong opcode.
	ErrHandshakeRejected = errors.New("screenlogic: handshake rejected")

	// ErrNoResponse is returned when a request read returns no bytes or times out.
	ErrNoResponse = errors.New("screenlogic: no response from gateway")

	// ErrUnexpectedOpcode is returned when a response opcode does not match
	// the opcode expected for the request.
	ErrUnexpectedOpcode = errors.New("screenlogic: unexpected response opcode")

	// ErrUnknownAnswer is returned when the gateway replies with UNKNOWN_ANSWER.
	ErrUnknownAnswer = errors.New("screenlogic: gateway returned unknown answer")

	// ErrTruncatedPayload is returned when a decode runs past the end of a payload.
	ErrTruncatedPayload = errors.New("screenlogic: truncated payload")

	// ErrMalformedEnvelope is returned when fewer bytes than a header are available.
	ErrMalformedEnvelope = errors.New("screenlogic: malformed envelope")

	// ErrCommandRejected is returned when a button press is not acknowledged.
	ErrCommandRejected = errors.New("screenlogic: command rejected")

	// ErrNotConnected is returned when a request is made on a session that
	// is not in the Connected state.
	ErrNotConnected = errors.New("screenlogic: session not connected")

	// ErrConfigNotLoaded is returned when a status payload is decoded before
	// any controller configuration is available.
	ErrConfigNotLoaded = errors.New("screenlogic: controller config not loaded")

	// ErrInvalidPassword is returned when the login password is empty or
	// longer than the controller accepts.
	ErrInvalidPassword = errors.New("screenlogic: invalid password")

	// ErrUnknownCircuit is returned when a circuit id has no device.
	ErrUnknownCircuit = errors.New("screenlogic: unknown circuit")

	// ErrInvalidState is returned when a circuit state is not 0 or 1.
	ErrInvalidState = errors.New("screenlogic: invalid circuit state")
)
