package auth

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory API key store.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

// NewMemoryStore creates a new in-memory API key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*APIKey)}
}

func (m *MemoryStore) Create(ctx context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.byHash[key.Hash] = &cp
	return nil
}

func (m *MemoryStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) ([]*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*APIKey
	for _, key := range m.byHash {
		if key.UserID == userID {
			cp := *key
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.byHash {
		if key.ID == id {
			key.Revoked = true
			return nil
		}
	}
	return ErrKeyNotFound
}
