package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tempPrefix = ".tmp-"

// FileStore keeps one file per entry under <root>/<namespace>/<key><ext>,
// so per-namespace stats are a directory listing.
type FileStore struct {
	root string
}

// NewFileStore creates root and one subdirectory per namespace.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("cache: file store root is required")
	}
	for _, ns := range Namespaces {
		if err := os.MkdirAll(filepath.Join(root, string(ns)), 0o755); err != nil {
			return nil, fmt.Errorf("cache: create namespace dir: %w", err)
		}
	}
	return &FileStore{root: root}, nil
}

// Ping checks that every namespace directory still exists and accepts
// new files.
func (s *FileStore) Ping(ctx context.Context) error {
	for _, ns := range Namespaces {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.CreateTemp(filepath.Join(s.root, string(ns)), tempPrefix+"ping-*")
		if err != nil {
			return fmt.Errorf("cache: %s not writable: %w", ns, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
	}
	return nil
}

// Path returns the file backing (ns, key).
func (s *FileStore) Path(ns Namespace, key Key) string {
	return filepath.Join(s.root, string(ns), string(key)+ns.Ext())
}

// Get reads the entry file. A missing file is a clean miss.
func (s *FileStore) Get(ctx context.Context, ns Namespace, key Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}
	if err := checkAddress(ns, key); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.Path(ns, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read entry: %w", err)
	}
	return data, true, nil
}

// Set writes the entry through a temporary file and a rename, so readers
// never observe a partially written entry. Concurrent writers to one key
// race harmlessly: the last rename wins.
func (s *FileStore) Set(ctx context.Context, ns Namespace, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := checkAddress(ns, key); err != nil {
		return err
	}

	dir := filepath.Join(s.root, string(ns))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: create namespace dir: %w", err)
	}

	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := os.Rename(tmp, s.Path(ns, key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: commit entry: %w", err)
	}
	return nil
}

// Clear deletes every entry (and any abandoned temporary file) in every
// namespace. The namespace directories stay.
func (s *FileStore) Clear(ctx context.Context) error {
	for _, ns := range Namespaces {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context error: %w", err)
		}

		dir := filepath.Join(s.root, string(ns))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("cache: list %s: %w", ns, err)
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("cache: remove %s/%s: %w", ns, e.Name(), err)
			}
		}
	}
	return nil
}

// Stats counts entry files per namespace.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	stats := make(Stats, len(Namespaces))
	for _, ns := range Namespaces {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context error: %w", err)
		}

		entries, err := os.ReadDir(filepath.Join(s.root, string(ns)))
		if errors.Is(err, fs.ErrNotExist) {
			stats[ns] = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cache: list %s: %w", ns, err)
		}

		count := 0
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, tempPrefix) || filepath.Ext(name) != ns.Ext() {
				continue
			}
			count++
		}
		stats[ns] = count
	}
	return stats, nil
}
