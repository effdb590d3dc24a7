package conn

import (
	"crypto/rand"
	"fmt"
	"net"

	"go.uber.org/zap"

	"soupbintcp/auth"
	"soupbintcp/heartbeat"
	"soupbintcp/message"
	"soupbintcp/protocol"
)

// NewServerConnection wraps an accepted net.Conn as a server-role
// Connection. A server-role Connection transitions
// to Connected immediately — login (the 'L' frame) is processed within
// Connected, not before it, matching soup_bin_connection.cpp's server-side
// constructor.
func NewServerConnection(netConn net.Conn, verifier auth.Verifier, repeater Repeater, handlers Handlers, opts ...Option) *Connection {
	if verifier == nil {
		verifier = auth.AllowAll
	}
	c := newConnection(RoleServer, netConn, handlers, opts)
	c.verifier = verifier
	c.repeater = repeater
	c.setStatus(Connected)
	c.heartbeatTimer = heartbeat.New(c.heartbeatInterval, c.onHeartbeatTick)
	go c.readLoop()
	return c
}

// handleLoginRequest implements the server's mandatory on 'L' behavior:
// assign a session if one wasn't requested,
// verify credentials, reply with login_accepted or login_rejected, and
// trigger replay when the client asked to resume from a prior sequence
// number.
func (c *Connection) handleLoginRequest(payload []byte) error {
	req, err := message.DecodeLoginRequest(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}

	if !c.verifier(req.Username, req.Password) {
		_ = c.sendLoginRejected(message.RejectAuth)
		return ErrClosed
	}

	sessionID := req.RequestedSession
	if sessionID == "" {
		sessionID = newSessionID()
	}

	resend := req.RequestedSequenceNumber != 0
	startSeq := req.RequestedSequenceNumber
	if !resend {
		startSeq = 1
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	accepted := message.LoginAccepted{Session: sessionID, SequenceNumber: startSeq}
	if err := c.send(protocol.TypeLoginAccepted, accepted.Encode()[protocol.HeaderSize:]); err != nil {
		return err
	}

	// Replay must finish writing to the wire before this connection is
	// handed to the application handler: the handler is what makes c
	// visible to Server's broadcast fan-out (it joins the roster there),
	// and a concurrent SendSequenced racing ahead of a still-in-progress
	// replay would interleave or reorder frames on this one socket,
	// violating the "replay before any newly appended message" invariant
	// (SPEC_FULL.md §3).
	if resend && c.repeater != nil {
		if err := c.repeater.RepeatFrom(c, startSeq); err != nil {
			c.logger.Warn("soupbintcp: replay failed", zap.Error(err))
		}
	}

	if c.handlers.OnLoginRequest != nil {
		c.handlers.OnLoginRequest(c, req)
	}
	return nil
}

func (c *Connection) sendLoginRejected(reason string) error {
	rej := message.LoginRejected{Reason: reason}
	return c.send(protocol.TypeLoginRejected, rej.Encode()[protocol.HeaderSize:])
}

// SendSequenced encodes payload as sequenced_data. seq identifies the
// message's position in the session's Message Log for the caller's own
// bookkeeping (server.Server owns the seqlog.Log and decides seq, whether
// assigning a fresh one for a broadcast or replaying a retained one) — it is
// not itself a wire field; SoupBinTCP sequencing is purely positional.
// Server role only.
func (c *Connection) SendSequenced(seq uint64, payload []byte) error {
	if c.role != RoleServer {
		return ErrProtocolMisuse
	}
	if c.Status() != Connected {
		return ErrProtocolMisuse
	}
	_ = seq
	return c.send(protocol.TypeSequencedData, payload)
}

// SendEndOfSession sends end_of_session and closes the connection. Server
// role only.
func (c *Connection) SendEndOfSession() error {
	if c.role != RoleServer {
		return ErrProtocolMisuse
	}
	err := c.send(protocol.TypeEndOfSession, nil)
	c.Close()
	return err
}

// newSessionID generates a fresh 10-character session id, right-justified
// within its 10-byte field — matching soup_bin_connection.cpp's
// on_login_request, which right-pads a generated identifier with
// std::setw(10) before writing it into the ALPHA session field.
func newSessionID() string {
	const width = 10
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	id := fmt.Sprintf("%x", buf)
	if len(id) > width {
		id = id[:width]
	}
	for len(id) < width {
		id = " " + id
	}
	return id
}
