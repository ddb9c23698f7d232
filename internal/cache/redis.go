package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/steveyegge/tasksync/internal/types"
)

// DefaultRedisPrefix namespaces cache keys.
const DefaultRedisPrefix = "tasksync:tasks:"

// Redis stores each owner's entry as a JSON string under prefix+owner.
// Keys carry no TTL.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (c *Redis) key(owner string) string {
	return c.prefix + owner
}

// ReadCollection implements Cache.ReadCollection.
func (c *Redis) ReadCollection(ctx context.Context, owner string) (Entry, bool, error) {
	data, err := c.client.Get(ctx, c.key(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache get error: %w", err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// WriteCollection implements Cache.WriteCollection.
func (c *Redis) WriteCollection(ctx context.Context, owner string, tasks []types.Task) error {
	data, err := encodeEntry(newEntry(tasks))
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(owner), data, 0).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (c *Redis) Close() error {
	return c.client.Close()
}
