package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wehriam/hiitrack/config"
)

// Client wraps a *redis.Client for the rest of the service. internal/store
// takes the raw *redis.Client via Raw() to implement the Store contract.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error if
// the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Raw exposes the underlying client for packages that need the full
// go-redis surface (internal/store's Redis-backed Store implementation).
func (r *Client) Raw() *redis.Client { return r.c }

func (r *Client) Close() error { return r.c.Close() }
