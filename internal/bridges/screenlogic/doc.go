// Package screenlogic implements the Pentair ScreenLogic pool controller bridge
// for Gray Logic.
//
// The controller speaks a little-endian binary protocol over TCP. This package
// owns the whole client side of it: message framing, the connect/challenge/login
// handshake, request encoding, positional decoding of the configuration and
// status records, and a device layer (switches and sensors) built on top of the
// latest decoded snapshot.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │ ScreenLogic     │   TCP
//	│      Core       │◄────────►│ Bridge (this)   │◄────────► Pool controller
//	└─────────────────┘          └─────────────────┘
//
// Control flow:
//
//	Bridge → Discoverer → Session.Connect (handshake + version)
//	       → Session.GetConfig (first time) / Session.GetStatus
//	       → DecodeConfig / DecodeStatus → Snapshot → devices
//
// Each refresh or command opens its own Session and closes it when done.
//
// # Wire format
//
// Every message is an 8-byte header followed by a payload:
//
//	Byte 0-1: code1, always 0
//	Byte 2-3: opcode
//	Byte 4-7: payload length
//
// Strings inside payloads are a 4-byte length, the bytes, and NUL padding
// to a 4-byte boundary.
//
// # Refresh model
//
// The Bridge never polls on its own. Every read or command first calls
// RefreshIfStale, which re-pulls status under the bridge mutex only when the
// refresh interval has elapsed. Callers that want periodic updates (the
// daemon in cmd/poolbridge) call it on their own schedule.
//
// # Thread Safety
//
// Bridge, Sensor, Switch and Session are safe for concurrent use. A Session
// serialises its requests; the Bridge only drives one while holding its
// mutex.
package screenlogic
