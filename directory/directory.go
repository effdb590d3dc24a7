// Package directory provides an optional etcd-backed record of which
// server instance currently owns a SoupBinTCP session, for deployments
// that run more than one server process behind a shared frontend (so a
// reconnecting client can be routed to whichever instance holds its
// session's Message Log).
//
// Repurposes registry/etcd_registry.go's lease+KeepAlive pattern: the
// concern there was "which addresses serve this RPC service", here it is
// "which address currently owns this session id" — same mechanism
// (TTL-based lease, auto-expiring key on crash), different key shape.
package directory

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/soupbintcp/sessions/"

// ownerRecord is the JSON value stored at /soupbintcp/sessions/{sessionID}.
type ownerRecord struct {
	Addr    string `json:"addr"`
	Version int    `json:"version"`
}

// EtcdDirectory is an etcd-v3-backed session directory.
type EtcdDirectory struct {
	client *clientv3.Client
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{client: c}, nil
}

// Announce records addr as the current owner of sessionID under a
// ttl-second lease, then starts KeepAlive to renew it for as long as the
// process holding the session is alive. If the process crashes without
// calling Withdraw, the key expires on its own.
func (d *EtcdDirectory) Announce(ctx context.Context, sessionID, addr string, ttl int64) error {
	lease, err := d.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("directory: grant lease: %w", err)
	}

	val, err := json.Marshal(ownerRecord{Addr: addr, Version: 1})
	if err != nil {
		return fmt.Errorf("directory: marshal owner record: %w", err)
	}

	if _, err := d.client.Put(ctx, keyPrefix+sessionID, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("directory: put: %w", err)
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("directory: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes the owner record for sessionID, used when a session is
// cleanly closed (Server.Shutdown, or a connection tearing down) rather
// than relying solely on lease expiry.
func (d *EtcdDirectory) Withdraw(ctx context.Context, sessionID string) error {
	_, err := d.client.Delete(ctx, keyPrefix+sessionID)
	return err
}

// Lookup returns the address currently announced as owning sessionID.
// ok is false if no live record exists (never announced, withdrawn, or
// expired).
func (d *EtcdDirectory) Lookup(ctx context.Context, sessionID string) (addr string, ok bool, err error) {
	resp, err := d.client.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	var rec ownerRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return "", false, fmt.Errorf("directory: unmarshal owner record: %w", err)
	}
	return rec.Addr, true, nil
}
