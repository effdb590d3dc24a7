// Package server implements the SoupBinTCP server role: accepting
// connections, running the login/resume handshake through package conn,
// retaining a sequenced Message Log for replay, and fanning outbound
// sequenced/unsequenced data out to every subscriber currently logged in.
//
// Accept loop shape (one goroutine per connection, a shutdown atomic.Bool
// checked to tell an intentional listener Close from a real Accept error,
// and a sync.WaitGroup draining in-flight connections) is grounded on
// server/server.go's Serve/handleConn/Shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"soupbintcp/auth"
	"soupbintcp/conn"
	"soupbintcp/directory"
	"soupbintcp/message"
	"soupbintcp/seqlog"
)

// ErrNoConnections is returned by SendUnsequenced when no client is
// currently logged in to receive it.
var ErrNoConnections = errors.New("server: no connected clients")

// ErrShuttingDown is returned by Shutdown when ctx expires before every
// in-flight connection has finished.
var ErrShuttingDown = errors.New("server: shutting down")

// Server runs the server role of a SoupBinTCP session stream: it accepts
// any number of concurrent TCP connections over its lifetime and keeps a
// roster of every one that has completed login, fanning sequenced and
// unsequenced broadcasts out to all of them — SoupBinTCP is a
// publisher-to-one-or-more-subscribers protocol (spec.md §1, §2), not a
// single-owner session, matching soup_bin_server.h's vector of live
// connections.
type Server struct {
	listener net.Listener

	verifier          auth.Verifier
	logger            *zap.Logger
	heartbeatInterval time.Duration
	loginLimiter      *rate.Limiter
	sessionDir        *directory.EtcdDirectory
	advertiseAddr     string

	log *seqlog.Log

	mu    sync.Mutex
	conns map[*conn.Connection]struct{}

	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger attaches a structured logger. Unset, Server logs nothing.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithHeartbeatInterval overrides the default 1-second heartbeat interval
// used for every accepted connection.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeatInterval = d }
}

// WithLoginRateLimit caps how often a new connection may complete its login
// exchange: r tokens are added per second, up to burst. An accepted
// connection that arrives with no token available is closed before the
// login frame is even read. nil (unlimited) by default. Grounded on
// middleware.RateLimitMiddleware's "limiter built once in the outer
// closure" shape.
func WithLoginRateLimit(r float64, burst int) Option {
	return func(s *Server) { s.loginLimiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithSessionDirectory attaches an optional session-ownership directory,
// announced for each connection that completes login and withdrawn when it
// disconnects. Never required for a Server to function.
func WithSessionDirectory(d *directory.EtcdDirectory, advertiseAddr string) Option {
	return func(s *Server) { s.sessionDir = d; s.advertiseAddr = advertiseAddr }
}

const defaultHeartbeatInterval = 1000 * time.Millisecond

// New creates a Server with no active listener. Call SetLoginVerifier (or
// pass credentials through some other out-of-band mechanism) before Serve
// if anonymous login is not acceptable.
func New(opts ...Option) *Server {
	s := &Server{
		verifier:          auth.AllowAll,
		logger:            zap.NewNop(),
		heartbeatInterval: defaultHeartbeatInterval,
		log:               seqlog.New(),
		conns:             make(map[*conn.Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLoginVerifier installs the credential check used for every login
// request. Must be called before Serve.
func (s *Server) SetLoginVerifier(v auth.Verifier) {
	if v == nil {
		v = auth.AllowAll
	}
	s.verifier = v
}

// Serve listens on address and runs the accept loop until the listener is
// closed by Shutdown. Returns nil on an intentional shutdown, the Accept
// error otherwise.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(listener)
}

// ServeListener runs the accept loop against an already-bound listener
// (the caller retains ownership of choosing the address, e.g. binding to
// an ephemeral port for a test). Returns nil on an intentional shutdown,
// the Accept error otherwise.
func (s *Server) ServeListener(listener net.Listener) error {
	s.listener = listener
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(netConn)
	}
}

// Addr returns the address Serve/ServeListener bound to, or nil if Serve
// has not yet been called.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(netConn net.Conn) {
	defer s.wg.Done()

	if s.loginLimiter != nil && !s.loginLimiter.Allow() {
		s.logger.Debug("soupbintcp: rejecting connection, login rate limit exceeded")
		netConn.Close()
		return
	}

	handlers := conn.Handlers{
		OnLoginRequest: s.onLoginRequest,
	}
	c := conn.NewServerConnection(netConn, s.verifier, s, handlers,
		conn.WithLogger(s.logger), conn.WithHeartbeatInterval(s.heartbeatInterval))

	<-c.Done()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	if s.sessionDir != nil && c.SessionID() != "" {
		if err := s.sessionDir.Withdraw(context.Background(), c.SessionID()); err != nil {
			s.logger.Warn("soupbintcp: session directory withdraw failed", zap.Error(err))
		}
	}
}

// onLoginRequest joins c to the connection roster. It runs only after
// conn.Connection has finished any resume-triggered replay onto c (see
// conn/server_side.go's handleLoginRequest), so a concurrent
// Server.SendSequenced can never land a newly-appended message on c's wire
// ahead of or interleaved with the backlog c asked to resume from.
func (s *Server) onLoginRequest(c *conn.Connection, req message.LoginRequest) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	if s.sessionDir != nil {
		if err := s.sessionDir.Announce(context.Background(), c.SessionID(), s.advertiseAddr, 10); err != nil {
			s.logger.Warn("soupbintcp: session directory announce failed", zap.Error(err))
		}
	}
}

// RepeatFrom implements conn.Repeater: it replays every retained message
// from `from` onward onto c, in order, under the Message Log's own
// iteration (SPEC_FULL.md §4.5/§4.6). It targets only the requesting
// connection — every other roster member is unaffected by one peer's
// resume.
func (s *Server) RepeatFrom(c *conn.Connection, from uint64) error {
	return s.log.ReplayFrom(from, func(seq uint64, payload []byte) error {
		return c.SendSequenced(seq, payload)
	})
}

// roster returns a snapshot slice of every connection currently logged in,
// safe to range over without holding s.mu.
func (s *Server) roster() []*conn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn.Connection, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// SendSequenced appends payload to the Message Log, assigning it the next
// sequence number, and forwards it to every connection in the roster
// (spec.md §4.5 send_sequenced: "for each Connection in Connected call
// send_sequenced(n, payload)"). Returns the assigned sequence number
// regardless of how many connections were live to receive it immediately —
// a later resume/replay will still deliver it to anyone who missed it.
func (s *Server) SendSequenced(payload []byte) uint64 {
	seq := s.log.Append(payload)
	for _, c := range s.roster() {
		if err := c.SendSequenced(seq, payload); err != nil {
			s.logger.Debug("soupbintcp: send to connection failed", zap.Error(err))
		}
	}
	return seq
}

// SendUnsequenced forwards payload to every connection in the roster
// without recording it in the Message Log. ErrNoConnections if no client
// is currently logged in.
func (s *Server) SendUnsequenced(payload []byte) error {
	roster := s.roster()
	if len(roster) == 0 {
		return ErrNoConnections
	}
	for _, c := range roster {
		if err := c.SendUnsequenced(payload); err != nil {
			s.logger.Debug("soupbintcp: send to connection failed", zap.Error(err))
		}
	}
	return nil
}

// Shutdown stops accepting new connections, sends end_of_session to every
// connection in the roster, and waits for all in-flight connections to
// finish (or ctx to expire).
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	for _, c := range s.roster() {
		c.SendEndOfSession()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShuttingDown, ctx.Err())
	}
}
