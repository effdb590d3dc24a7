// Package conn implements the SoupBinTCP per-peer connection: the session
// state machine shared by both the server role and the client role, wire
// framing dispatch, heartbeat emission, and the outbound write path.
package conn

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"soupbintcp/auth"
	"soupbintcp/heartbeat"
	"soupbintcp/message"
	"soupbintcp/protocol"
)

// Role distinguishes which side of the session a Connection drives. A
// closed variant rather than two separate types — see SPEC_FULL.md §4.4 — so that
// role-gated operations share one code path and fail the same way
// (ErrProtocolMisuse) when called on the wrong role.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Status is the Connection's lifecycle state. Disconnected is terminal: a
// Connection is never reused after reaching it.
type Status int

const (
	Connecting Status = iota
	Connected
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Sentinel errors. All I/O and framing failures are handled locally by
// closing the offending Connection (SPEC_FULL.md §7); these are returned
// to the immediate caller of a Connection method, never propagated further.
var (
	ErrFramingError       = protocol.ErrFramingError
	ErrParseError         = errors.New("conn: parse error")
	ErrProtocolMisuse     = errors.New("conn: protocol misuse")
	ErrAuthRejected       = errors.New("conn: login rejected: authorization")
	ErrSessionUnavailable = errors.New("conn: login rejected: session unavailable")
	ErrClosed             = errors.New("conn: connection closed")
)

// Handlers is the set of application extension points for inbound frames.
// Every field is optional; a nil field is a no-op beyond whatever mandatory
// state-machine bookkeeping Connection itself performs for that frame type
// (login_accepted, login_request, and sequenced_data update internal state
// unconditionally — see SPEC_FULL.md §4.4).
type Handlers struct {
	OnDebug           func(c *Connection, payload []byte)
	OnLoginAccepted   func(c *Connection, session string, sequenceNumber uint64)
	OnLoginRejected   func(c *Connection, reason string)
	OnSequencedData   func(c *Connection, seq uint64, payload []byte)
	OnUnsequencedData func(c *Connection, payload []byte)
	OnLoginRequest    func(c *Connection, req message.LoginRequest)
	OnLogoutRequest   func(c *Connection)
	OnServerHeartbeat func(c *Connection)
	OnClientHeartbeat func(c *Connection)
	OnEndOfSession    func(c *Connection)
}

// Repeater is the narrow capability a server-role Connection uses to ask
// for retained sequenced messages to be replayed to it during login. It is
// handed to the Connection at construction, never an owning back-reference
// to a *server.Server — see SPEC_FULL.md §4.4 and
// soup_bin_connection.h's MessageRepeater.
type Repeater interface {
	RepeatFrom(c *Connection, from uint64) error
}

// ClientCredentials are presented in a client-role login_request.
type ClientCredentials struct {
	Username                string
	Password                string
	RequestedSession        string
	RequestedSequenceNumber uint64
}

// Connection drives the SoupBinTCP session for one peer over one duplex
// byte stream.
type Connection struct {
	role     Role
	netConn  net.Conn
	handlers Handlers
	logger   *zap.Logger

	// server role only
	verifier auth.Verifier
	repeater Repeater

	// client role only; read-only after construction
	creds ClientCredentials

	heartbeatTimer    *heartbeat.Timer
	heartbeatInterval time.Duration

	mu              sync.Mutex
	status          Status
	sessionID       string
	nextExpectedSeq uint64

	sendMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	loginResult chan loginOutcome // client role only, buffered 1
}

type loginOutcome struct {
	session string
	seq     uint64
	err     error
}

// Option configures a Connection at construction.
type Option func(*Connection)

// WithLogger attaches a structured logger. Unset, Connection logs nothing
// (zap.NewNop()).
func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// WithHeartbeatInterval overrides the default 1-second heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Connection) { c.heartbeatInterval = d }
}

const defaultHeartbeatInterval = 1000 * time.Millisecond

func newConnection(role Role, netConn net.Conn, handlers Handlers, opts []Option) *Connection {
	c := &Connection{
		role:              role,
		netConn:           netConn,
		handlers:          handlers,
		logger:            zap.NewNop(),
		closed:            make(chan struct{}),
		heartbeatInterval: defaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
