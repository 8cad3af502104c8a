package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu         sync.RWMutex
	namespaces map[string]map[int][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{namespaces: make(map[string]map[int][]byte)}
}

func (b *MemoryBackend) Namespace(name string) (KeyedStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.namespaces[name]; !ok {
		b.namespaces[name] = make(map[int][]byte)
	}
	return &memoryNamespace{backend: b, name: name}, nil
}

func (b *MemoryBackend) Close() error { return nil }

type memoryNamespace struct {
	backend *MemoryBackend
	name    string
}

func (n *memoryNamespace) Append(_ context.Context, id int, payload []byte) error {
	n.backend.mu.Lock()
	defer n.backend.mu.Unlock()
	entries := n.backend.namespaces[n.name]
	if _, ok := entries[id]; ok {
		return fmt.Errorf("%w: %s/%d", ErrDuplicateKey, n.name, id)
	}
	entries[id] = slices.Clone(payload)
	return nil
}

func (n *memoryNamespace) ReadAll(context.Context) ([]Entry, error) {
	n.backend.mu.RLock()
	defer n.backend.mu.RUnlock()
	entries := n.backend.namespaces[n.name]
	out := make([]Entry, 0, len(entries))
	for id, payload := range entries {
		out = append(out, Entry{ID: id, Payload: slices.Clone(payload)})
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.ID - b.ID })
	return out, nil
}

func (n *memoryNamespace) ReadByID(_ context.Context, id int) ([]byte, error) {
	n.backend.mu.RLock()
	defer n.backend.mu.RUnlock()
	payload, ok := n.backend.namespaces[n.name][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, n.name, id)
	}
	return slices.Clone(payload), nil
}

func (n *memoryNamespace) Delete(_ context.Context, id int) error {
	n.backend.mu.Lock()
	defer n.backend.mu.Unlock()
	delete(n.backend.namespaces[n.name], id)
	return nil
}
