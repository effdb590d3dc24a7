package directory

import (
	"context"
	"testing"
	"time"
)

func TestAnnounceLookupWithdraw(t *testing.T) {
	d, err := NewEtcdDirectory([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := d.Announce(ctx, "SESSION001", "127.0.0.1:1234", 10); err != nil {
		t.Fatal(err)
	}

	addr, ok, err := d.Lookup(ctx, "SESSION001")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a live owner record")
	}
	if addr != "127.0.0.1:1234" {
		t.Fatalf("addr = %q, want %q", addr, "127.0.0.1:1234")
	}

	if err := d.Withdraw(ctx, "SESSION001"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	_, ok, err = d.Lookup(ctx, "SESSION001")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no owner record after withdraw")
	}
}

func TestLookupMissingSession(t *testing.T) {
	d, err := NewEtcdDirectory([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := d.Lookup(context.Background(), "NOSUCHSESSION")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no owner record for a session never announced")
	}
}
