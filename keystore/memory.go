package keystore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It records the policy each item was
// written with so callers can assert on it.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]string
	policies map[string]AccessPolicy
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]string),
		policies: make(map[string]AccessPolicy),
	}
}

func (m *MemoryStore) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) SetItem(ctx context.Context, key, value string, policy *AccessPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = value
	if policy != nil {
		m.policies[key] = *policy
	} else {
		delete(m.policies, key)
	}
	return nil
}

func (m *MemoryStore) DeleteItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	delete(m.policies, key)
	return nil
}

// Policy returns the policy key was last written with.
func (m *MemoryStore) Policy(key string) (AccessPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[key]
	return p, ok
}

// Keys returns every stored key in no particular order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}

// ListKeys implements Lister
func (m *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Keys(), nil
}

// Len returns the number of stored items
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
