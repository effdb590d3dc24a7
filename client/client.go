// Package client dials one known SoupBinTCP server address and performs
// the login/resume handshake, returning a live *conn.Connection.
//
// Stripped of client/client.go's service discovery and load balancing
// (a SoupBinTCP client always targets one known session endpoint, not a
// pool of interchangeable service instances) but grounded on its Call
// flow's shape of "establish transport, then block for the matching
// response" and on soup_bin_connection.cpp's client-role constructor
// (connect, then synchronously send login_request and wait for the
// login response).
package client

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"soupbintcp/conn"
)

// Config describes how to dial and log in to a SoupBinTCP server.
type Config struct {
	// Network and Address are passed to net.Dial ("tcp", "host:port").
	Network string
	Address string

	Username string
	Password string

	// SessionID is the session to resume. Empty requests a new session.
	SessionID string
	// NextSequenceNumber is the first sequence number the caller has not
	// yet processed. Zero requests no replay (a fresh start within the
	// session).
	NextSequenceNumber uint64

	// HeartbeatInterval overrides the default 1-second client heartbeat.
	HeartbeatInterval time.Duration

	Logger *zap.Logger
}

const defaultHeartbeatInterval = 1000 * time.Millisecond

// Dial connects to cfg.Address, sends login_request, and blocks until
// login_accepted or login_rejected is observed (or ctx is done). The
// returned Connection is already in the Connected state. handlers are
// installed before login_request is sent, so they also see the login reply
// (OnLoginAccepted / OnLoginRejected) and any frame that arrives before it.
func Dial(ctx context.Context, cfg Config, handlers conn.Handlers) (*conn.Connection, error) {
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	dialer := &net.Dialer{}
	netConn, err := dialer.DialContext(ctx, network, cfg.Address)
	if err != nil {
		return nil, err
	}

	interval := cfg.HeartbeatInterval
	if interval == 0 {
		interval = defaultHeartbeatInterval
	}

	opts := []conn.Option{conn.WithHeartbeatInterval(interval)}
	if cfg.Logger != nil {
		opts = append(opts, conn.WithLogger(cfg.Logger))
	}

	creds := conn.ClientCredentials{
		Username:                cfg.Username,
		Password:                cfg.Password,
		RequestedSession:        cfg.SessionID,
		RequestedSequenceNumber: cfg.NextSequenceNumber,
	}

	c, err := conn.NewClientConnection(ctx, netConn, creds, handlers, opts...)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}
