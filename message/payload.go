package message

import "soupbintcp/protocol"

// Debug carries free-form text, either direction. It exists mostly for
// interactive diagnostics against a live session.
type Debug struct{ Text []byte }

// Encode renders the debug frame.
func (m Debug) Encode() []byte { return encodePayload(protocol.TypeDebug, m.Text) }

// SequencedData is a server→client application payload assigned a
// sequence number by the Message Log. The sequence number itself travels
// out-of-band (it is the connection's own bookkeeping, not a wire field);
// see conn.Connection.SendSequenced.
type SequencedData struct{ Payload []byte }

// Encode renders the sequenced_data frame.
func (m SequencedData) Encode() []byte { return encodePayload(protocol.TypeSequencedData, m.Payload) }

// UnsequencedData is an application payload delivered without retention
// or sequence assignment, either direction.
type UnsequencedData struct{ Payload []byte }

// Encode renders the unsequenced_data frame.
func (m UnsequencedData) Encode() []byte {
	return encodePayload(protocol.TypeUnsequencedData, m.Payload)
}

// ServerHeartbeat is an empty liveness frame sent server→client.
type ServerHeartbeat struct{}

// Encode renders the server_heartbeat frame.
func (ServerHeartbeat) Encode() []byte { return encodePayload(protocol.TypeServerHeartbeat, nil) }

// ClientHeartbeat is an empty liveness frame sent client→server.
type ClientHeartbeat struct{}

// Encode renders the client_heartbeat frame.
func (ClientHeartbeat) Encode() []byte { return encodePayload(protocol.TypeClientHeartbeat, nil) }

// LogoutRequest is sent client→server to end the session cleanly.
type LogoutRequest struct{}

// Encode renders the logout_request frame.
func (LogoutRequest) Encode() []byte { return encodePayload(protocol.TypeLogoutRequest, nil) }

// EndOfSession is sent server→client to end the session.
type EndOfSession struct{}

// Encode renders the end_of_session frame.
func (EndOfSession) Encode() []byte { return encodePayload(protocol.TypeEndOfSession, nil) }

// encodePayload renders a full frame (length prefix + type + payload) for
// the header-only packet types, whose payload is opaque application data
// rather than fixed-width fields.
func encodePayload(typ byte, payload []byte) []byte {
	frame := make([]byte, protocol.HeaderSize+len(payload))
	total := len(frame)
	frame[0] = byte((total - 2) >> 8)
	frame[1] = byte(total - 2)
	frame[2] = typ
	copy(frame[protocol.HeaderSize:], payload)
	return frame
}
