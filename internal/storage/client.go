package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamware/ringcache/internal/cluster"
	"github.com/dreamware/ringcache/internal/protocol"
)

// Client is a Backend that talks to a store server over the line protocol,
// one connection per call.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient returns a client for the store at addr. Every call, dial
// included, is bounded by timeout.
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

// Addr returns the store address.
func (c *Client) Addr() string { return c.addr }

// Get fetches key. A "null" reply becomes ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	reply, err := cluster.Exchange(ctx, c.addr, protocol.CmdGet+" "+key, c.timeout)
	if err != nil {
		return "", err
	}
	switch reply {
	case protocol.ReplyNull:
		return "", ErrKeyNotFound
	case protocol.ReplyInvalid:
		return "", fmt.Errorf("store rejected get %q", key)
	}
	return reply, nil
}

// Set stores key without a ttl; the store keeps values until deleted.
func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.expectOK(ctx, protocol.CmdSet+" "+key+" "+value)
}

// Delete removes key from the store.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.expectOK(ctx, protocol.CmdDelete+" "+key)
}

func (c *Client) expectOK(ctx context.Context, line string) error {
	reply, err := cluster.Exchange(ctx, c.addr, line, c.timeout)
	if err != nil {
		return err
	}
	if reply != protocol.ReplyOK {
		return fmt.Errorf("store replied %q to %q", reply, line)
	}
	return nil
}

var _ Backend = (*Client)(nil)
