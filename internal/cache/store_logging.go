package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/metrics"
	"genforge-gateway/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner  Store
	logger *zap.Logger
}

// NewLoggingStore returns a store that logs and records metrics. Request
// loggers found in the context take precedence over logger.
func NewLoggingStore(inner Store, logger *zap.Logger) Store {
	return &LoggingStore{inner: inner, logger: logging.Named(logger, "cache")}
}

func (c *LoggingStore) Get(ctx context.Context, ns Namespace, key Key) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, ns, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(string(ns), result).Inc()

	fields := []zap.Field{
		zap.String("namespace", string(ns)),
		zap.String("hash_key", string(key)),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.Or(ctx, c.logger)
	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingStore) Set(ctx context.Context, ns Namespace, key Key, value []byte) error {
	start := time.Now()
	err := c.inner.Set(ctx, ns, key, value)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("namespace", string(ns)),
		zap.String("hash_key", string(key)),
		zap.Int("bytes", len(value)),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.Or(ctx, c.logger)
	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		metrics.CacheWritesTotal.WithLabelValues(string(ns)).Inc()
		logger.Info("cache_set", fields...)
	}

	return err
}

func (c *LoggingStore) Clear(ctx context.Context) error {
	err := c.inner.Clear(ctx)

	logger := logging.Or(ctx, c.logger)
	if err != nil {
		logger.Error("cache_clear", zap.Error(err))
	} else {
		logger.Info("cache_clear")
	}
	return err
}

func (c *LoggingStore) Stats(ctx context.Context) (Stats, error) {
	return c.inner.Stats(ctx)
}
