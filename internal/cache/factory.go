package cache

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	// Root is the directory of the file backend.
	Root string
	// Prefix namespaces keys of the redis backend.
	Prefix string
}

// NewStore builds the configured backend. File is the default.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("cache: redis backend needs a client")
		}
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		}), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(cfg.Root)
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
