// Package protocol implements the SoupBinTCP wire framing: a 2-byte
// big-endian length prefix, a single ASCII type byte, and a variable-length
// payload.
//
// Frame format:
//
//	0        2  3
//	┌────────┬──┬───────────────┐
//	│ length │ t│    payload     │
//	│ uint16 │  │  length-1 bytes│
//	└────────┴──┴───────────────┘
//
// length counts the bytes that follow it (type byte + payload), so the
// total on-wire frame size is length+2. This solves the same TCP sticky
// packet problem as a fixed header, just with a 1-byte type instead of a
// multi-field header: the receiver reads the 3-byte prefix first, then
// reads exactly length-1 more bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the number of bytes preceding the payload: 2 for the
// length prefix, 1 for the type byte.
const HeaderSize = 3

// MaxPayload is the largest payload that fits in the 16-bit length prefix
// (65535 - 1 for the type byte).
const MaxPayload = 65534

// Packet type bytes. The set is closed: any other byte is a framing error.
const (
	TypeDebug           byte = '+'
	TypeLoginRequest    byte = 'L'
	TypeLoginAccepted   byte = 'A'
	TypeLoginRejected   byte = 'J'
	TypeServerHeartbeat byte = 'H'
	TypeClientHeartbeat byte = 'R'
	TypeSequencedData   byte = 'S'
	TypeUnsequencedData byte = 'U'
	TypeLogoutRequest   byte = 'O'
	TypeEndOfSession    byte = 'Z'
)

// ErrFramingError is returned when a type byte is not in the closed set,
// or the declared length is inconsistent with what was read.
var ErrFramingError = errors.New("protocol: framing error")

// ErrPayloadTooLarge is returned by Encode when the payload does not fit
// in the 16-bit length prefix.
var ErrPayloadTooLarge = errors.New("protocol: payload too large")

// IsKnownType reports whether t is one of the closed set of packet types.
func IsKnownType(t byte) bool {
	switch t {
	case TypeDebug, TypeLoginRequest, TypeLoginAccepted, TypeLoginRejected,
		TypeServerHeartbeat, TypeClientHeartbeat, TypeSequencedData,
		TypeUnsequencedData, TypeLogoutRequest, TypeEndOfSession:
		return true
	}
	return false
}

// Encode writes a complete frame (length prefix + type + payload) to w.
func Encode(w io.Writer, typ byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], uint16(1+len(payload)))
	header[2] = typ

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHeader parses the 3-byte frame prefix, returning the declared body
// length (length-1, i.e. the number of payload bytes still to be read) and
// the type byte. It fails with ErrFramingError if the type byte is not in
// the closed set.
func DecodeHeader(prefix [HeaderSize]byte) (bodyLen uint16, typ byte, err error) {
	length := binary.BigEndian.Uint16(prefix[0:2])
	typ = prefix[2]
	if !IsKnownType(typ) {
		return 0, 0, fmt.Errorf("%w: type %q", ErrFramingError, typ)
	}
	if length == 0 {
		return 0, 0, fmt.Errorf("%w: zero length", ErrFramingError)
	}
	return length - 1, typ, nil
}

// ReadFrame reads one complete frame from r: the 3-byte header, validated
// via DecodeHeader, then exactly bodyLen more bytes. Any I/O error
// (including io.EOF) is returned unwrapped so callers can distinguish a
// clean peer disconnect from a framing violation.
func ReadFrame(r io.Reader) (typ byte, payload []byte, err error) {
	var prefix [HeaderSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, nil, err
	}

	bodyLen, typ, err := DecodeHeader(prefix)
	if err != nil {
		return 0, nil, err
	}

	payload = make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return typ, payload, nil
}
