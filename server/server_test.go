package server

import (
	"context"
	"net"
	"testing"
	"time"

	"soupbintcp/client"
	"soupbintcp/conn"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(append([]Option{WithHeartbeatInterval(time.Hour)}, opts...)...)
	go s.ServeListener(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, ln
}

func dial(t *testing.T, addr string, h conn.Handlers) *conn.Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, client.Config{Address: addr, Username: "u", Password: "p", HeartbeatInterval: time.Hour}, h)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func TestServeStopsOnShutdown(t *testing.T) {
	s, ln := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_ = ln
}

func TestOneClientLoginAndHeartbeat(t *testing.T) {
	s, ln := newTestServer(t, WithHeartbeatInterval(20*time.Millisecond))

	hb := make(chan struct{}, 1)
	c := dial(t, ln.Addr().String(), conn.Handlers{
		OnServerHeartbeat: func(c *conn.Connection) {
			select {
			case hb <- struct{}{}:
			default:
			}
		},
	})
	defer c.Close()

	if c.Status() != conn.Connected {
		t.Fatalf("status = %v, want Connected", c.Status())
	}
	if c.SessionID() == "" {
		t.Fatal("expected a server-assigned session id")
	}

	select {
	case <-hb:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a server heartbeat")
	}
	_ = s
}

func TestBroadcastSequencedDataReachesClient(t *testing.T) {
	s, ln := newTestServer(t)

	received := make(chan []byte, 1)
	c := dial(t, ln.Addr().String(), conn.Handlers{
		OnSequencedData: func(c *conn.Connection, seq uint64, payload []byte) {
			received <- payload
		},
	})
	defer c.Close()

	seq := s.SendSequenced([]byte("hello"))
	if seq != 1 {
		t.Fatalf("first broadcast seq = %d, want 1", seq)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Fatalf("payload = %q, want %q", payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestBroadcastReachesEveryLoggedInConnection(t *testing.T) {
	s, ln := newTestServer(t)

	const subscribers = 3
	received := make([]chan []byte, subscribers)
	for i := range received {
		received[i] = make(chan []byte, 1)
		ch := received[i]
		c := dial(t, ln.Addr().String(), conn.Handlers{
			OnSequencedData: func(c *conn.Connection, seq uint64, payload []byte) {
				ch <- payload
			},
		})
		defer c.Close()
	}

	// Give every dial's login_request time to be processed and join the
	// roster before the broadcast is sent.
	deadline := time.Now().Add(2 * time.Second)
	for len(s.roster()) < subscribers && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.SendSequenced([]byte("hello-everyone"))

	for i, ch := range received {
		select {
		case payload := <-ch:
			if string(payload) != "hello-everyone" {
				t.Fatalf("subscriber %d: payload = %q, want %q", i, payload, "hello-everyone")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for broadcast", i)
		}
	}
}

func TestReconnectReplaysFromRequestedSequence(t *testing.T) {
	s, ln := newTestServer(t)

	first := dial(t, ln.Addr().String(), conn.Handlers{})
	sessionID := first.SessionID()

	s.SendSequenced([]byte("one"))
	s.SendSequenced([]byte("two"))
	s.SendSequenced([]byte("three"))
	first.Close()

	replayed := make(chan uint64, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second, err := client.Dial(ctx, client.Config{
		Address:            ln.Addr().String(),
		Username:           "u",
		Password:           "p",
		SessionID:          sessionID,
		NextSequenceNumber: 2,
		HeartbeatInterval:  time.Hour,
	}, conn.Handlers{
		OnSequencedData: func(c *conn.Connection, seq uint64, payload []byte) {
			replayed <- seq
		},
	})
	if err != nil {
		t.Fatalf("Dial (resume): %v", err)
	}
	defer second.Close()

	var got []uint64
	for len(got) < 2 {
		select {
		case seq := <-replayed:
			got = append(got, seq)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for replay, got so far: %v", got)
		}
	}
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("replayed sequence numbers = %v, want [2 3]", got)
	}
}

func TestSendUnsequencedRequiresActiveConnection(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.SendUnsequenced([]byte("x")); err != ErrNoConnections {
		t.Fatalf("err = %v, want ErrNoConnections", err)
	}
}

func TestLoginRateLimitRejectsBurst(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(WithHeartbeatInterval(time.Hour), WithLoginRateLimit(0, 0))
	go s.ServeListener(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = client.Dial(ctx, client.Config{Address: ln.Addr().String(), Username: "u", Password: "p"}, conn.Handlers{})
	if err == nil {
		t.Fatal("expected login to be rejected by the zero-burst rate limiter")
	}
}
