package conn

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"soupbintcp/protocol"
)

// Status returns the Connection's current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Role returns which side of the session this Connection drives.
func (c *Connection) Role() Role { return c.role }

// Done returns a channel that is closed once the Connection reaches
// Disconnected, for callers that want to block until it tears down.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// SessionID returns the session id currently associated with this
// Connection (set on the server side during login, set on the client side
// once login_accepted arrives).
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// send writes a single complete frame to the stream under sendMu, giving
// exact wire-order serialization for every writer (the connection's own
// read-loop-triggered replies, the heartbeat goroutine, and any
// application goroutine calling SendSequenced/SendUnsequenced concurrently).
func (c *Connection) send(typ byte, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return protocol.Encode(c.netConn, typ, payload)
}

// SendUnsequenced sends an unsequenced_data frame. Allowed in Connected
// from either role (unsequenced_data flows in both directions).
func (c *Connection) SendUnsequenced(payload []byte) error {
	if c.Status() != Connected {
		return ErrProtocolMisuse
	}
	return c.send(protocol.TypeUnsequencedData, payload)
}

// SendDebug sends a debug frame, allowed from either role at any status —
// it carries no session semantics.
func (c *Connection) SendDebug(payload []byte) error {
	return c.send(protocol.TypeDebug, payload)
}

// Close transitions the Connection to Disconnected, stops its heartbeat,
// and closes the underlying stream. Idempotent and safe to call from any
// goroutine, including the Connection's own read loop.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setStatus(Disconnected)
		if c.heartbeatTimer != nil {
			c.heartbeatTimer.Stop()
		}
		close(c.closed)
		err = c.netConn.Close()
	})
	return err
}

// readLoop owns the connection's single reader goroutine: it is the only
// goroutine that ever calls protocol.ReadFrame on this stream, preserving
// SoupBinTCP's requirement that handlers for one Connection are never
// invoked concurrently with themselves.
func (c *Connection) readLoop() {
	defer c.Close()
	for {
		typ, payload, err := protocol.ReadFrame(c.netConn)
		if err != nil {
			if errors.Is(err, ErrFramingError) {
				c.logger.Warn("soupbintcp: closing connection after framing error", zap.Error(err))
			} else if !errors.Is(err, io.EOF) {
				c.logger.Debug("soupbintcp: connection read failed", zap.Error(err))
			}
			return
		}
		if err := c.dispatch(typ, payload); err != nil {
			if errors.Is(err, ErrClosed) {
				c.logger.Debug("soupbintcp: connection closed by protocol exchange", zap.Error(err))
			} else {
				c.logger.Warn("soupbintcp: closing connection after dispatch error", zap.Error(err))
			}
			return
		}
	}
}

// onHeartbeatTick is the heartbeat.Listener callback: it emits the
// role-appropriate heartbeat frame unconditionally, per SPEC_FULL.md's
// resolution of Open Question (a) (no suppression during active traffic).
func (c *Connection) onHeartbeatTick(time.Duration) {
	if c.Status() == Disconnected {
		return
	}
	var typ byte
	if c.role == RoleServer {
		typ = protocol.TypeServerHeartbeat
	} else {
		typ = protocol.TypeClientHeartbeat
	}
	if err := c.send(typ, nil); err != nil {
		c.logger.Debug("soupbintcp: heartbeat send failed", zap.Error(err))
	}
}

// dispatch decodes the mandatory bookkeeping for system messages and
// invokes the matching application handler. It returns a non-nil error
// whenever the connection must close, and the caller, readLoop, closes it
// on any such error: a framing/parse/protocol-misuse condition, or
// ErrClosed after a frame that ends the session (logout_request on the
// server side, end_of_session and login_rejected on the client side, and a
// login_request whose credentials the verifier rejects).
func (c *Connection) dispatch(typ byte, payload []byte) error {
	switch typ {
	case protocol.TypeDebug:
		if c.handlers.OnDebug != nil {
			c.handlers.OnDebug(c, payload)
		}
		return nil

	case protocol.TypeLoginRequest:
		if c.role != RoleServer {
			return ErrProtocolMisuse
		}
		return c.handleLoginRequest(payload)

	case protocol.TypeLoginAccepted:
		if c.role != RoleClient {
			return ErrProtocolMisuse
		}
		return c.handleLoginAccepted(payload)

	case protocol.TypeLoginRejected:
		if c.role != RoleClient {
			return ErrProtocolMisuse
		}
		return c.handleLoginRejected(payload)

	case protocol.TypeServerHeartbeat:
		if c.role != RoleClient {
			return ErrProtocolMisuse
		}
		if c.handlers.OnServerHeartbeat != nil {
			c.handlers.OnServerHeartbeat(c)
		}
		return nil

	case protocol.TypeClientHeartbeat:
		if c.role != RoleServer {
			return ErrProtocolMisuse
		}
		if c.handlers.OnClientHeartbeat != nil {
			c.handlers.OnClientHeartbeat(c)
		}
		return nil

	case protocol.TypeSequencedData:
		if c.role != RoleClient {
			return ErrProtocolMisuse
		}
		c.mu.Lock()
		// sequenced_data carries no sequence number on the wire: the number
		// reported is this connection's next-expected count, which then
		// advances by one. Gap detection is left to the application.
		seq := c.nextExpectedSeq
		c.mu.Unlock()
		if c.handlers.OnSequencedData != nil {
			c.handlers.OnSequencedData(c, seq, payload)
		}
		c.mu.Lock()
		c.nextExpectedSeq = seq + 1
		c.mu.Unlock()
		return nil

	case protocol.TypeUnsequencedData:
		if c.handlers.OnUnsequencedData != nil {
			c.handlers.OnUnsequencedData(c, payload)
		}
		return nil

	case protocol.TypeLogoutRequest:
		if c.role != RoleServer {
			return ErrProtocolMisuse
		}
		if c.handlers.OnLogoutRequest != nil {
			c.handlers.OnLogoutRequest(c)
		}
		return ErrClosed // server tears down the connection on logout

	case protocol.TypeEndOfSession:
		if c.role != RoleClient {
			return ErrProtocolMisuse
		}
		if c.handlers.OnEndOfSession != nil {
			c.handlers.OnEndOfSession(c)
		}
		return ErrClosed // client tears down the connection on end_of_session

	default:
		// protocol.ReadFrame already rejects unknown types before this is
		// reached; this case only guards against a future type addition.
		return ErrFramingError
	}
}
