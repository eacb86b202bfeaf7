package screenlogic

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the message header: code1(2) + opcode(2) + length(4).
const HeaderSize = 8

// stringAlignment is the boundary strings are NUL-padded to.
const stringAlignment = 4

// Envelope is one framed protocol message.
type Envelope struct {
	// Opcode identifies the message type.
	Opcode uint16

	// Payload is the message body, without the header.
	Payload []byte
}

// EncodeMessage frames a payload with the 8-byte little-endian header.
//
// Parameters:
//   - opcode: Message type
//   - payload: Message body (may be nil)
//
// Returns:
//   - []byte: Header followed by the payload
func EncodeMessage(opcode uint16, payload []byte) []byte {
	msg := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(msg[0:2], 0)
	binary.LittleEndian.PutUint16(msg[2:4], opcode)
	binary.LittleEndian.PutUint32(msg[4:8], uint32(len(payload))) //nolint:gosec // payloads are a few hundred bytes
	copy(msg[HeaderSize:], payload)
	return msg
}

// DecodeMessage splits raw bytes into opcode and payload.
//
// The payload is limited to the length declared in the header. When fewer
// bytes than declared are present the available bytes are returned; the
// record decoders report the shortfall as ErrTruncatedPayload.
//
// Returns:
//   - Envelope: Decoded opcode and payload (payload aliases data)
//   - error: ErrMalformedEnvelope if data is shorter than the header
func DecodeMessage(data []byte) (Envelope, error) {
	if len(data) < HeaderSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedEnvelope, len(data), HeaderSize)
	}

	opcode := binary.LittleEndian.Uint16(data[2:4])
	length := binary.LittleEndian.Uint32(data[4:8])

	payload := data[HeaderSize:]
	if uint64(len(payload)) > uint64(length) {
		payload = payload[:length]
	}

	return Envelope{Opcode: opcode, Payload: payload}, nil
}

// decodeHeader reads opcode and declared payload length from a header.
func decodeHeader(header []byte) (opcode uint16, length uint32, err error) {
	if len(header) < HeaderSize {
		return 0, 0, fmt.Errorf("%w: header %d bytes", ErrMalformedEnvelope, len(header))
	}
	return binary.LittleEndian.Uint16(header[2:4]), binary.LittleEndian.Uint32(header[4:8]), nil
}

// EncodeString encodes a string the way the client sends it: a 4-byte length,
// the bytes, then NUL padding to the next 4-byte boundary. The controller
// expects at least one NUL, so an already aligned string gets a full word.
func EncodeString(s string) []byte {
	pad := stringAlignment - len(s)%stringAlignment
	buf := make([]byte, 4+len(s)+pad)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(s))) //nolint:gosec // bounded by caller
	copy(buf[4:], s)
	return buf
}

// encodeAnswerString encodes a string the way the controller sends it: padding
// only up to the boundary, none when already aligned. This is the exact
// inverse of DecodeString.
func encodeAnswerString(s string) []byte {
	buf := make([]byte, 4+paddedLength(uint64(len(s))))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(s))) //nolint:gosec // bounded by caller
	copy(buf[4:], s)
	return buf
}

// paddedLength rounds n up to the string alignment.
func paddedLength(n uint64) uint64 {
	if rem := n % stringAlignment; rem != 0 {
		return n + stringAlignment - rem
	}
	return n
}

// DecodeString reads a length-prefixed string at offset.
//
// The cursor advances past the length word, the string bytes and their
// padding. Trailing NUL bytes are stripped from the result.
//
// Returns:
//   - string: Decoded string
//   - int: Offset of the next field
//   - error: ErrTruncatedPayload if the string runs past the buffer
func DecodeString(buf []byte, offset int) (string, int, error) {
	length, next, err := ReadUint32(buf, offset)
	if err != nil {
		return "", offset, err
	}

	end := uint64(next) + paddedLength(uint64(length)) //nolint:gosec // next is a valid offset
	if end > uint64(len(buf)) {
		return "", offset, fmt.Errorf("%w: string of %d bytes at offset %d", ErrTruncatedPayload, length, offset)
	}

	raw := buf[next : next+int(length)]
	for len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}

	return string(raw), int(end), nil
}

// ReadUint8 reads one byte at offset and returns it with the next offset.
func ReadUint8(buf []byte, offset int) (uint8, int, error) {
	if offset < 0 || offset+1 > len(buf) {
		return 0, offset, truncated(offset, 1, len(buf))
	}
	return buf[offset], offset + 1, nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func ReadUint16(buf []byte, offset int) (uint16, int, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, offset, truncated(offset, 2, len(buf))
	}
	return binary.LittleEndian.Uint16(buf[offset : offset+2]), offset + 2, nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func ReadUint32(buf []byte, offset int) (uint32, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, offset, truncated(offset, 4, len(buf))
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+4]), offset + 4, nil
}

// ReadInt32 reads a little-endian int32 at offset.
func ReadInt32(buf []byte, offset int) (int32, int, error) {
	v, next, err := ReadUint32(buf, offset)
	return int32(v), next, err //nolint:gosec // two's complement reinterpretation
}

func truncated(offset, want, have int) error {
	return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedPayload, want, offset, have)
}

// cursor walks a payload with the Read* functions and keeps the first error.
// Once an error is recorded every further read returns zero, so a decoder can
// read a whole record and check err once.
type cursor struct {
	buf    []byte
	offset int
	err    error
}

func (c *cursor) uint8() uint8 {
	if c.err != nil {
		return 0
	}
	var v uint8
	v, c.offset, c.err = ReadUint8(c.buf, c.offset)
	return v
}

func (c *cursor) uint16() uint16 {
	if c.err != nil {
		return 0
	}
	var v uint16
	v, c.offset, c.err = ReadUint16(c.buf, c.offset)
	return v
}

func (c *cursor) uint32() uint32 {
	if c.err != nil {
		return 0
	}
	var v uint32
	v, c.offset, c.err = ReadUint32(c.buf, c.offset)
	return v
}

func (c *cursor) int32() int32 {
	if c.err != nil {
		return 0
	}
	var v int32
	v, c.offset, c.err = ReadInt32(c.buf, c.offset)
	return v
}

func (c *cursor) string() string {
	if c.err != nil {
		return ""
	}
	var v string
	v, c.offset, c.err = DecodeString(c.buf, c.offset)
	return v
}

func (c *cursor) skip(n int) {
	if c.err != nil {
		return
	}
	if c.offset+n > len(c.buf) {
		c.err = truncated(c.offset, n, len(c.buf))
		return
	}
	c.offset += n
}

// writer builds little-endian payloads.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) int32(v int32) {
	w.uint32(uint32(v)) //nolint:gosec // two's complement reinterpretation
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) bytes() []byte {
	return w.buf
}

// expect fails the cursor when fewer than count records of at least
// minRecord bytes remain, so a corrupt count cannot drive a long loop.
func (c *cursor) expect(count uint32, minRecord int) {
	if c.err != nil {
		return
	}
	need := uint64(count) * uint64(minRecord)               //nolint:gosec // minRecord is a small constant
	if have := uint64(len(c.buf) - c.offset); need > have { //nolint:gosec // offset never exceeds len
		c.err = fmt.Errorf("%w: %d records need %d bytes at offset %d, have %d",
			ErrTruncatedPayload, count, need, c.offset, have)
	}
}
