package cache

import (
	"context"
	"errors"
	"fmt"
)

// Namespace partitions the cache by content type.
type Namespace string

const (
	NamespaceNarrative Namespace = "narrative"
	NamespaceDungeon   Namespace = "dungeon"
	NamespaceMusic     Namespace = "music"
	NamespaceVision    Namespace = "vision"
)

// Namespaces lists every namespace in a fixed order.
var Namespaces = []Namespace{
	NamespaceNarrative,
	NamespaceDungeon,
	NamespaceMusic,
	NamespaceVision,
}

var (
	// ErrUnknownNamespace is returned for namespaces not in Namespaces.
	ErrUnknownNamespace = errors.New("cache: unknown namespace")
	// ErrInvalidKey is returned for keys that are not KeyLength hex chars.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrCorruptEntry and ErrStaleReference describe entries that were found
	// but could not be used. They are logged and counted, never returned to
	// callers of Manager: both are served as a miss.
	ErrCorruptEntry   = errors.New("cache: corrupt entry")
	ErrStaleReference = errors.New("cache: stale file reference")
)

// Pointer reports whether entries in ns hold a file path instead of an
// embedded JSON document.
func (ns Namespace) Pointer() bool {
	return ns == NamespaceMusic
}

// Ext is the file extension used for entries of ns on disk.
func (ns Namespace) Ext() string {
	if ns.Pointer() {
		return ".txt"
	}
	return ".json"
}

// Valid reports whether ns is a known namespace.
func (ns Namespace) Valid() bool {
	for _, n := range Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// Stats is the number of entries per namespace.
type Stats map[Namespace]int

// Total returns the number of entries across all namespaces.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Store is byte-level persistence addressed by (namespace, key).
// Implemented by the file store (default), memory store (tests/dev)
// and Redis store (shared deployments).
//
// Entries never expire. A Get that finds nothing is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, ns Namespace, key Key) ([]byte, bool, error)
	Set(ctx context.Context, ns Namespace, key Key, value []byte) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Pinger is implemented by stores that can check their backing service is
// usable before the first request.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkAddress(ns Namespace, key Key) error {
	if !ns.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
