package storage

import (
	"context"
	"sync"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

// MemoryCartStore serializes mutations per user. Different users never share a lock.
type MemoryCartStore struct {
	locks sync.Map // map[string]*sync.Mutex

	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]domain.Cart)}
}

func (s *MemoryCartStore) lockForUser(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *MemoryCartStore) LoadCart(ctx context.Context, userID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[userID]
	if !ok {
		return domain.NewCart(userID), nil
	}
	cart.Entries = cart.Snapshot()
	return cart, nil
}

func (s *MemoryCartStore) UpdateCart(ctx context.Context, userID string, mutate func(*domain.Cart) error) (domain.Cart, error) {
	unlock := s.lockForUser(userID)
	defer unlock()

	cart, err := s.LoadCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := mutate(&cart); err != nil {
		return domain.Cart{}, err
	}

	s.mu.Lock()
	s.carts[userID] = cart
	s.mu.Unlock()

	cart.Entries = cart.Snapshot()
	return cart, nil
}
