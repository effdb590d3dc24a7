package conn

import (
	"context"
	"fmt"
	"net"

	"soupbintcp/heartbeat"
	"soupbintcp/message"
	"soupbintcp/protocol"
)

// NewClientConnection wraps a dialed net.Conn as a client-role Connection,
// sends the initial login_request, and blocks until login_accepted or
// login_rejected arrives (or ctx is done). Mirrors
// soup_bin_connection.cpp's client-side constructor, which performs login
// synchronously before returning a usable connection.
func NewClientConnection(ctx context.Context, netConn net.Conn, creds ClientCredentials, handlers Handlers, opts ...Option) (*Connection, error) {
	c := newConnection(RoleClient, netConn, handlers, opts)
	c.creds = creds
	c.loginResult = make(chan loginOutcome, 1)
	c.setStatus(Connecting)
	c.heartbeatTimer = heartbeat.New(c.heartbeatInterval, c.onHeartbeatTick)
	go c.readLoop()

	req := message.LoginRequest{
		Username:                creds.Username,
		Password:                creds.Password,
		RequestedSession:        creds.RequestedSession,
		RequestedSequenceNumber: creds.RequestedSequenceNumber,
	}
	if err := c.send(protocol.TypeLoginRequest, req.Encode()[protocol.HeaderSize:]); err != nil {
		c.Close()
		return nil, err
	}

	select {
	case outcome := <-c.loginResult:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return c, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// handleLoginAccepted implements the client-role reaction to a successful
// login: record the session id and starting sequence number, transition to
// Connected, and unblock NewClientConnection.
func (c *Connection) handleLoginAccepted(payload []byte) error {
	accepted, err := message.DecodeLoginAccepted(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}

	c.mu.Lock()
	c.sessionID = accepted.Session
	c.nextExpectedSeq = accepted.SequenceNumber
	c.mu.Unlock()
	c.setStatus(Connected)

	if c.handlers.OnLoginAccepted != nil {
		c.handlers.OnLoginAccepted(c, accepted.Session, accepted.SequenceNumber)
	}
	select {
	case c.loginResult <- loginOutcome{session: accepted.Session, seq: accepted.SequenceNumber}:
	default:
	}
	return nil
}

// handleLoginRejected implements the client-role reaction to a rejected
// login: report the reason, both through the loginResult channel consumed
// by NewClientConnection and through Handlers.OnLoginRejected, then close.
func (c *Connection) handleLoginRejected(payload []byte) error {
	rejected, err := message.DecodeLoginRejected(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}

	loginErr := ErrAuthRejected
	if rejected.Reason == message.RejectSessionUnavailable {
		loginErr = ErrSessionUnavailable
	}

	if c.handlers.OnLoginRejected != nil {
		c.handlers.OnLoginRejected(c, rejected.Reason)
	}
	select {
	case c.loginResult <- loginOutcome{err: loginErr}:
	default:
	}
	return ErrClosed
}
