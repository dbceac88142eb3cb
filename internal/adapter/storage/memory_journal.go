package storage

import (
	"context"
	"sync"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]struct{})}
}

func (m *MemoryIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *MemoryIdempotency) DeleteIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// MemoryJournal keeps recorded movements in order of arrival.
type MemoryJournal struct {
	mu        sync.Mutex
	movements []domain.StockMovement
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) RecordMovement(ctx context.Context, movement domain.StockMovement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.movements = append(j.movements, movement)
	return nil
}

func (j *MemoryJournal) Movements() []domain.StockMovement {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.StockMovement(nil), j.movements...)
}
