package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// RedisStore implements Store on Redis so several gateway replicas share one
// cache. Entries are stored without TTL under <prefix>:<namespace>:<key>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: config.Prefix,
	}
}

// namespacePrefix is the key prefix shared by every entry of ns.
func (c *RedisStore) namespacePrefix(ns Namespace) string {
	if c.prefix == "" {
		return string(ns) + ":"
	}
	return c.prefix + ":" + string(ns) + ":"
}

// key builds the final Redis key with prefix.
func (c *RedisStore) key(ns Namespace, k Key) string {
	return c.namespacePrefix(ns) + string(k)
}

// Get retrieves a value from Redis.
// On Redis error, it returns (nil, false, err) so caller can log and treat as miss.
func (c *RedisStore) Get(ctx context.Context, ns Namespace, key Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}
	if err := checkAddress(ns, key); err != nil {
		return nil, false, err
	}

	res, err := c.client.Get(ctx, c.key(ns, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Key does not exist: a clean miss.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return res, true, nil
}

// Set stores a value without expiry.
func (c *RedisStore) Set(ctx context.Context, ns Namespace, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := checkAddress(ns, key); err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.key(ns, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Clear deletes every entry of every namespace under this store's prefix.
func (c *RedisStore) Clear(ctx context.Context) error {
	for _, ns := range Namespaces {
		err := c.scan(ctx, ns, func(keys []string) error {
			return c.client.Del(ctx, keys...).Err()
		})
		if err != nil {
			return fmt.Errorf("redis clear %s failed: %w", ns, err)
		}
	}
	return nil
}

// Stats counts entries per namespace with SCAN.
func (c *RedisStore) Stats(ctx context.Context) (Stats, error) {
	stats := make(Stats, len(Namespaces))
	for _, ns := range Namespaces {
		count := 0
		err := c.scan(ctx, ns, func(keys []string) error {
			count += len(keys)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("redis stats %s failed: %w", ns, err)
		}
		stats[ns] = count
	}
	return stats, nil
}

// scan walks the keys of ns in batches.
func (c *RedisStore) scan(ctx context.Context, ns Namespace, fn func(keys []string) error) error {
	var cursor uint64
	match := c.namespacePrefix(ns) + "*"

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context error: %w", err)
		}

		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks the Redis connection.
func (c *RedisStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Ping(ctx).Err()
}
