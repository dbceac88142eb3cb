package storage

import (
	"context"
	"sync"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

type productSlot struct {
	mu sync.Mutex
	p  domain.Product
}

// MemoryCatalog keeps products in process. Stock mutations lock only the product they touch.
type MemoryCatalog struct {
	mu    sync.RWMutex
	slots map[string]*productSlot
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{slots: make(map[string]*productSlot)}
}

func (m *MemoryCatalog) slot(id string) (*productSlot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	return s, ok
}

func (m *MemoryCatalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	s, ok := m.slot(id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProduct(s.p), nil
}

func (m *MemoryCatalog) SaveProduct(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}
	product = copyProduct(product)

	m.mu.Lock()
	s, ok := m.slots[product.ID]
	if !ok {
		m.slots[product.ID] = &productSlot{p: product}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	s.mu.Lock()
	s.p = product
	s.mu.Unlock()
	return nil
}

func (m *MemoryCatalog) IsInStock(ctx context.Context, productID, size string) (bool, error) {
	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.InStock(size), nil
}

func (m *MemoryCatalog) DecrementStock(ctx context.Context, productID string, quantity int, size string) error {
	return m.apply(productID, func(p domain.Product) (domain.Product, error) {
		return p.Decremented(quantity, size)
	})
}

func (m *MemoryCatalog) IncrementStock(ctx context.Context, productID string, quantity int, size string) error {
	return m.apply(productID, func(p domain.Product) (domain.Product, error) {
		return p.Incremented(quantity, size)
	})
}

func (m *MemoryCatalog) apply(productID string, next func(domain.Product) (domain.Product, error)) error {
	s, ok := m.slot(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := next(s.p)
	if err != nil {
		return err
	}
	s.p = updated
	return nil
}

func copyProduct(p domain.Product) domain.Product {
	if p.Variants != nil {
		p.Variants = append([]domain.Variant(nil), p.Variants...)
	}
	if p.Discount != nil {
		d := *p.Discount
		p.Discount = &d
	}
	return p
}
