package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"genforge-gateway/internal/metrics"
	"genforge-gateway/pkg/logging/logging"
)

// Manager is the typed face of a Store used by the pipeline: JSON documents
// in the structured namespaces, file paths in pointer namespaces.
//
// Lookups never fail. Store errors, corrupt documents and pointers to files
// that no longer exist are logged and reported as a miss so the caller
// regenerates.
type Manager struct {
	store  Store
	logger *zap.Logger
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logging.Named(logger, "cache")}
}

// GetJSON decodes the entry for material into dst and reports whether it did.
func (m *Manager) GetJSON(ctx context.Context, ns Namespace, material KeyMaterial, dst any) bool {
	key := material.Key()

	data, ok := m.get(ctx, ns, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		m.discard(ctx, ns, key, "corrupt", fmt.Errorf("%w: %w", ErrCorruptEntry, err))
		return false
	}
	return true
}

// SetJSON stores v as an indented JSON document.
func (m *Manager) SetJSON(ctx context.Context, ns Namespace, material KeyMaterial, v any) error {
	if ns.Pointer() {
		return fmt.Errorf("cache: %s holds file references, not documents", ns)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal %s entry: %w", ns, err)
	}
	return m.store.Set(ctx, ns, material.Key(), data)
}

// GetPath returns the file path stored for material, but only while that
// file still exists on disk.
func (m *Manager) GetPath(ctx context.Context, ns Namespace, material KeyMaterial) (string, bool) {
	key := material.Key()

	data, ok := m.get(ctx, ns, key)
	if !ok {
		return "", false
	}

	path := strings.TrimSpace(string(data))
	if path == "" {
		m.discard(ctx, ns, key, "corrupt", fmt.Errorf("%w: empty file reference", ErrCorruptEntry))
		return "", false
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m.discard(ctx, ns, key, "stale", fmt.Errorf("%w: %s", ErrStaleReference, path))
		return "", false
	case err != nil:
		m.discard(ctx, ns, key, "stale", fmt.Errorf("%w: %w", ErrStaleReference, err))
		return "", false
	case info.IsDir():
		m.discard(ctx, ns, key, "stale", fmt.Errorf("%w: %s is a directory", ErrStaleReference, path))
		return "", false
	}

	return path, true
}

// SetPath stores a file reference for material.
func (m *Manager) SetPath(ctx context.Context, ns Namespace, material KeyMaterial, path string) error {
	if !ns.Pointer() {
		return fmt.Errorf("cache: %s holds documents, not file references", ns)
	}
	return m.store.Set(ctx, ns, material.Key(), []byte(path))
}

// Clear removes every entry in every namespace.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Stats returns entry counts per namespace.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.store.Stats(ctx)
}

func (m *Manager) get(ctx context.Context, ns Namespace, key Key) ([]byte, bool) {
	data, ok, err := m.store.Get(ctx, ns, key)
	if err != nil {
		// Cache is best-effort; log and treat as miss.
		logging.Or(ctx, m.logger).Warn("cache_get_error",
			zap.String("namespace", string(ns)),
			zap.String("hash_key", string(key)),
			zap.Error(err),
		)
		return nil, false
	}
	return data, ok
}

func (m *Manager) discard(ctx context.Context, ns Namespace, key Key, reason string, err error) {
	metrics.CacheDiscardedTotal.WithLabelValues(string(ns), reason).Inc()
	logging.Or(ctx, m.logger).Warn("cache_entry_discarded",
		zap.String("namespace", string(ns)),
		zap.String("hash_key", string(key)),
		zap.String("cache_result", reason),
		zap.Error(err),
	)
}
