package booking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory booking store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

// NewMemoryStore creates a new in-memory booking store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*Booking)}
}

func (m *MemoryStore) Create(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from []Status, to Status, payout PayoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrInvalidStatus
	}
	allowed := false
	for _, f := range from {
		if b.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidStatus
	}
	b.Status = to
	if payout != "" {
		b.PayoutStatus = payout
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Booking
	for _, b := range m.bookings {
		if b.BookerID == userID || b.PartnerID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
