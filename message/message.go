// Package message defines the ten SoupBinTCP packet types and the typed
// field accessors (ALPHA / NUMERIC) used to read and write their fixed-width
// wire layout.
//
// Every packet is a protocol frame (see package protocol): a length prefix,
// a type byte, and a payload. The structs in this package are thin views
// over the full frame's bytes — offsets below are given from the start of
// the frame (byte 0 is the high byte of the length prefix), matching the
// reference SoupBinTCP field layout.
package message

import (
	"fmt"
	"strconv"
	"strings"

	"soupbintcp/protocol"
)

// GetAlpha returns the ALPHA field at [offset, offset+width) with trailing
// spaces trimmed. Embedded (non-trailing) spaces are preserved.
func GetAlpha(frame []byte, offset, width int) string {
	return strings.TrimRight(string(frame[offset:offset+width]), " ")
}

// SetAlpha writes s left-justified into [offset, offset+width), truncating
// if s is longer than width and space-padding the remainder otherwise.
func SetAlpha(frame []byte, offset, width int, s string) {
	field := frame[offset : offset+width]
	for i := range field {
		field[i] = ' '
	}
	copy(field, s)
}

// GetNumeric parses the NUMERIC field at [offset, offset+width) as a
// right-justified, space-padded ASCII decimal integer.
func GetNumeric(frame []byte, offset, width int) (uint64, error) {
	trimmed := strings.TrimLeft(string(frame[offset:offset+width]), " ")
	if trimmed == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("message: parse error in numeric field: %w", err)
	}
	return n, nil
}

// SetNumeric renders n as a right-justified, space-padded ASCII decimal
// integer into [offset, offset+width). It fails if the rendering does not
// fit in width.
func SetNumeric(frame []byte, offset, width int, n uint64) error {
	s := strconv.FormatUint(n, 10)
	if len(s) > width {
		return fmt.Errorf("message: overflow: %d does not fit in %d-byte numeric field", n, width)
	}
	field := frame[offset : offset+width]
	for i := range field {
		field[i] = ' '
	}
	copy(field[width-len(s):], s)
	return nil
}

// newFrame allocates a frame of totalLen bytes (including the 3-byte
// header) and writes the length prefix and type byte. Space-filled fields
// are left for the caller to populate via SetAlpha/SetNumeric.
func newFrame(typ byte, totalLen int) []byte {
	frame := make([]byte, totalLen)
	frame[0] = byte((totalLen - 2) >> 8)
	frame[1] = byte(totalLen - 2)
	frame[2] = typ
	for i := 3; i < totalLen; i++ {
		frame[i] = ' '
	}
	return frame
}

const (
	usernameOffset, usernameWidth            = 3, 6
	passwordOffset, passwordWidth            = 9, 10
	reqSessionOffset, reqSessionWidth        = 19, 10
	reqSequenceOffset, reqSequenceWidth      = 29, 20
	loginRequestLen                          = 49
	sessionOffset, sessionWidth              = 3, 10
	sequenceNumberOffset, sequenceNumberWidth = 13, 20
	loginAcceptedLen                          = 33
	rejectReasonOffset, rejectReasonWidth     = 3, 1
	loginRejectedLen                          = 4
)

// Reject reason codes carried by LoginRejected.
const (
	RejectAuth               = "A" // credentials rejected by the verifier
	RejectSessionUnavailable = "S" // requested session cannot be resumed
)

// LoginRequest is sent client→server to begin a session.
type LoginRequest struct {
	Username                string
	Password                string
	RequestedSession        string
	RequestedSequenceNumber uint64
}

// Encode renders the login_request frame.
func (m LoginRequest) Encode() []byte {
	frame := newFrame(protocol.TypeLoginRequest, loginRequestLen)
	SetAlpha(frame, usernameOffset, usernameWidth, m.Username)
	SetAlpha(frame, passwordOffset, passwordWidth, m.Password)
	SetAlpha(frame, reqSessionOffset, reqSessionWidth, m.RequestedSession)
	// A fixed-width 20-byte field comfortably holds any uint64; ignore the
	// error, it can only fire for widths narrower than 20.
	_ = SetNumeric(frame, reqSequenceOffset, reqSequenceWidth, m.RequestedSequenceNumber)
	return frame
}

// DecodeLoginRequest parses a login_request payload (the bytes following
// the 3-byte header, as delivered by protocol.ReadFrame).
func DecodeLoginRequest(payload []byte) (LoginRequest, error) {
	frame := toFrame(protocol.TypeLoginRequest, payload)
	seq, err := GetNumeric(frame, reqSequenceOffset, reqSequenceWidth)
	if err != nil {
		return LoginRequest{}, err
	}
	return LoginRequest{
		Username:                GetAlpha(frame, usernameOffset, usernameWidth),
		Password:                GetAlpha(frame, passwordOffset, passwordWidth),
		RequestedSession:        GetAlpha(frame, reqSessionOffset, reqSessionWidth),
		RequestedSequenceNumber: seq,
	}, nil
}

// LoginAccepted is sent server→client on successful login.
type LoginAccepted struct {
	Session        string
	SequenceNumber uint64
}

// Encode renders the login_accepted frame.
func (m LoginAccepted) Encode() []byte {
	frame := newFrame(protocol.TypeLoginAccepted, loginAcceptedLen)
	SetAlpha(frame, sessionOffset, sessionWidth, m.Session)
	_ = SetNumeric(frame, sequenceNumberOffset, sequenceNumberWidth, m.SequenceNumber)
	return frame
}

// DecodeLoginAccepted parses a login_accepted payload.
func DecodeLoginAccepted(payload []byte) (LoginAccepted, error) {
	frame := toFrame(protocol.TypeLoginAccepted, payload)
	seq, err := GetNumeric(frame, sequenceNumberOffset, sequenceNumberWidth)
	if err != nil {
		return LoginAccepted{}, err
	}
	return LoginAccepted{
		Session:        GetAlpha(frame, sessionOffset, sessionWidth),
		SequenceNumber: seq,
	}, nil
}

// LoginRejected is sent server→client when login fails.
type LoginRejected struct {
	Reason string // RejectAuth or RejectSessionUnavailable
}

// Encode renders the login_rejected frame.
func (m LoginRejected) Encode() []byte {
	frame := newFrame(protocol.TypeLoginRejected, loginRejectedLen)
	SetAlpha(frame, rejectReasonOffset, rejectReasonWidth, m.Reason)
	return frame
}

// DecodeLoginRejected parses a login_rejected payload.
func DecodeLoginRejected(payload []byte) (LoginRejected, error) {
	frame := toFrame(protocol.TypeLoginRejected, payload)
	return LoginRejected{Reason: GetAlpha(frame, rejectReasonOffset, rejectReasonWidth)}, nil
}

// toFrame reconstructs a full-frame byte slice (header + payload) from a
// decoded payload, so the ALPHA/NUMERIC helpers — which take offsets from
// the start of the frame — can be reused for decoding as well as encoding.
func toFrame(typ byte, payload []byte) []byte {
	frame := make([]byte, protocol.HeaderSize+len(payload))
	total := len(frame)
	frame[0] = byte((total - 2) >> 8)
	frame[1] = byte(total - 2)
	frame[2] = typ
	copy(frame[protocol.HeaderSize:], payload)
	return frame
}
