package store

import (
	"context"
	"sync"
)

type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore returns a process-local store, used by tests and the CLI's ephemeral mode.
func NewMemoryStore(maxBytes int) Store {
	return newJSONStore(&memoryBackend{entries: make(map[string][]byte)}, maxBytes)
}

func (b *memoryBackend) name() string { return "memory" }

func (b *memoryBackend) get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (b *memoryBackend) put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), value...)
	return nil
}

func (b *memoryBackend) del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}
