package draft

import (
	"bytes"
	"context"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/patrickmn/go-cache"
)

// MemoryKV keeps drafts in process memory. Entries never expire.
type MemoryKV struct {
	cache *cache.Cache
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{cache: cache.New(cache.NoExpiration, 0)}
}

// Get implements core.KeyValueStore.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	if x, found := m.cache.Get(key); found {
		return bytes.Clone(x.([]byte)), nil
	}

	return nil, core.ErrKeyNotFound
}

// Put implements core.KeyValueStore.
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, bytes.Clone(value), cache.NoExpiration)

	return nil
}

// Delete implements core.KeyValueStore.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)

	return nil
}
