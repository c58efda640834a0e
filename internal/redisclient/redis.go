// Package redisclient wraps the shared Redis connection optional
// components fall back from when unreachable. Its one user is
// Sanitizer's persisted per-zone speak cooldown.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis handle behind the same thin shape SOMS's
// other optional backends use.
type Client struct {
	c *redis.Client
}

// New parses addr (a redis:// URL) and returns a connected client.
func New(addr string) (*Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity with a short deadline, for callers that
// want to log a warning and continue without Redis rather than fail
// startup over an optional dependency.
func (c *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.c.Ping(ctx).Err()
}

// Raw returns the underlying go-redis client for callers needing the
// full command surface.
func (c *Client) Raw() *redis.Client { return c.c }

// Close releases the connection pool.
func (c *Client) Close() error { return c.c.Close() }
