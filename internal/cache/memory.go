package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory. Entries never expire;
// used by tests and single-process dev setups.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Namespace]map[Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: newMemoryItems()}
}

func newMemoryItems() map[Namespace]map[Key][]byte {
	items := make(map[Namespace]map[Key][]byte, len(Namespaces))
	for _, ns := range Namespaces {
		items[ns] = make(map[Key][]byte)
	}
	return items
}

// Get retrieves a copy of the value.
func (c *MemoryStore) Get(_ context.Context, ns Namespace, key Key) ([]byte, bool, error) {
	if err := checkAddress(ns, key); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	value, ok := c.items[ns][key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores value under (ns, key), replacing any previous value.
func (c *MemoryStore) Set(_ context.Context, ns Namespace, key Key, value []byte) error {
	if err := checkAddress(ns, key); err != nil {
		return err
	}

	// Copy to decouple from caller's buffer
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.mu.Lock()
	c.items[ns][key] = valueCopy
	c.mu.Unlock()

	return nil
}

// Clear removes all items from cache.
func (c *MemoryStore) Clear(_ context.Context) error {
	c.mu.Lock()
	c.items = newMemoryItems()
	c.mu.Unlock()
	return nil
}

func (c *MemoryStore) Stats(_ context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make(Stats, len(Namespaces))
	for _, ns := range Namespaces {
		stats[ns] = len(c.items[ns])
	}
	return stats, nil
}
