package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/pricing"
)

// Mock ProductRepository
type mockProducts struct {
	mu       sync.Mutex
	products map[string]domain.Product
	failOn   string
	calls    int
}

func newMockProducts(products ...domain.Product) *mockProducts {
	m := &mockProducts{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProducts) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if id == m.failOn {
		return domain.Product{}, errors.New("connection reset")
	}
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProducts) SaveProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

var pricedAt = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func product(id, price string, stock int) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           "Product " + id,
		BasePrice:      decimal.RequireFromString(price),
		AggregateStock: stock,
		IsActive:       true,
	}
}

func cartOf(userID string, entries ...domain.CartEntry) domain.Cart {
	return domain.Cart{UserID: userID, Entries: entries}
}

func entry(id, productID string, qty int) domain.CartEntry {
	return domain.CartEntry{ID: id, ProductID: productID, Quantity: qty, AddedAt: pricedAt}
}

func TestPriceCart_DiscountedLineAboveThreshold(t *testing.T) {
	p := product("jacket", "100", 10)
	start := pricedAt.Add(-time.Hour)
	end := pricedAt.Add(time.Hour)
	p.Discount = &domain.Discount{Percentage: decimal.NewFromInt(20), StartTime: &start, EndTime: &end}

	agg := NewAggregator(newMockProducts(p), pricing.DefaultShipping(), 4)
	view, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "jacket", 2)), pricedAt)
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	line := view.Lines[0]
	assert.Equal(t, "80", line.UnitPrice.String())
	assert.Equal(t, "20", line.DiscountAmount.String())
	assert.Equal(t, "160", line.LineTotal.String())
	assert.True(t, view.Shipping.IsZero())

	summary := view.Summary()
	assert.Equal(t, "160.00", summary.Total)
	assert.Equal(t, "0.00", summary.Shipping)
	assert.Equal(t, 2, summary.ItemCount)
}

func TestPriceCart_ShippingBelowThreshold(t *testing.T) {
	agg := NewAggregator(newMockProducts(product("socks", "10", 10)), pricing.DefaultShipping(), 4)

	view, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "socks", 3)), pricedAt)
	require.NoError(t, err)

	summary := view.Summary()
	assert.Equal(t, "30.00", summary.Subtotal)
	assert.Equal(t, "5.99", summary.Shipping)
	assert.Equal(t, "35.99", summary.Total)
}

func TestPriceCart_ExpiredDiscountIgnored(t *testing.T) {
	p := product("jacket", "100", 10)
	end := pricedAt.Add(-time.Second)
	p.Discount = &domain.Discount{Percentage: decimal.NewFromInt(50), EndTime: &end}

	agg := NewAggregator(newMockProducts(p), pricing.DefaultShipping(), 4)
	view, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "jacket", 1)), pricedAt)
	require.NoError(t, err)
	assert.Equal(t, "100", view.Lines[0].UnitPrice.String())
}

func TestPriceCart_UnavailableLinesExcluded(t *testing.T) {
	inactive := product("retired", "40", 5)
	inactive.IsActive = false

	agg := NewAggregator(newMockProducts(product("mug", "12.5", 5), inactive), pricing.DefaultShipping(), 4)
	cart := cartOf("u1",
		entry("e1", "mug", 2),
		entry("e2", "retired", 1),
		entry("e3", "deleted", 4),
	)

	view, err := agg.PriceCart(context.Background(), cart, pricedAt)
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	assert.Equal(t, "mug", view.Lines[0].ProductID)
	assert.Equal(t, 2, view.ItemCount)
	assert.Equal(t, "25", view.Subtotal.String())

	require.Len(t, view.Unavailable, 2)
	assert.Equal(t, domain.ReasonProductInactive, view.Unavailable[0].Reason)
	assert.Equal(t, "e2", view.Unavailable[0].EntryID)
	assert.Equal(t, domain.ReasonProductNotFound, view.Unavailable[1].Reason)
	assert.Equal(t, "e3", view.Unavailable[1].EntryID)
}

func TestPriceCart_ExactDecimalSubtotal(t *testing.T) {
	agg := NewAggregator(newMockProducts(product("a", "0.1", 10), product("b", "0.2", 10)), pricing.DefaultShipping(), 1)

	view, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "a", 3), entry("e2", "b", 1)), pricedAt)
	require.NoError(t, err)
	assert.True(t, view.Subtotal.Equal(decimal.RequireFromString("0.5")), "got %s", view.Subtotal)
}

func TestPriceCart_StockFlags(t *testing.T) {
	agg := NewAggregator(newMockProducts(
		product("gone", "5", 0),
		product("few", "5", 1),
		product("plenty", "5", 100),
	), pricing.DefaultShipping(), 4)

	view, err := agg.PriceCart(context.Background(), cartOf("u1",
		entry("e1", "gone", 1),
		entry("e2", "few", 3),
		entry("e3", "plenty", 3),
	), pricedAt)
	require.NoError(t, err)

	require.Len(t, view.Lines, 3)
	assert.Equal(t, domain.StockOutOfStock, view.Lines[0].StockStatus)
	assert.Equal(t, domain.StockInsufficient, view.Lines[1].StockStatus)
	assert.Empty(t, view.Lines[2].StockStatus)
	assert.Equal(t, "35", view.Subtotal.String(), "stock flags do not change totals")
}

func TestPriceCart_EmptyCart(t *testing.T) {
	agg := NewAggregator(newMockProducts(), pricing.DefaultShipping(), 4)

	view, err := agg.PriceCart(context.Background(), domain.NewCart("u1"), pricedAt)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	summary := view.Summary()
	assert.Equal(t, "0.00", summary.Subtotal)
	assert.Equal(t, "5.99", summary.Shipping, "a zero subtotal is below the threshold")
	assert.Equal(t, "5.99", summary.Total)
}

func TestPriceCart_OnlyUnavailableLinesStillCharged(t *testing.T) {
	inactive := product("lamp", "80", 3)
	inactive.IsActive = false
	agg := NewAggregator(newMockProducts(inactive), pricing.DefaultShipping(), 4)

	view, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "lamp", 1), entry("e2", "gone", 2)), pricedAt)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Len(t, view.Unavailable, 2)

	summary := view.Summary()
	assert.Equal(t, 0, summary.ItemCount)
	assert.Equal(t, "5.99", summary.Shipping)
	assert.Equal(t, "5.99", summary.Total)
}

func TestPriceCart_RepositoryFailureAborts(t *testing.T) {
	products := newMockProducts(product("mug", "12.5", 5))
	products.failOn = "broken"
	agg := NewAggregator(products, pricing.DefaultShipping(), 4)

	_, err := agg.PriceCart(context.Background(), cartOf("u1", entry("e1", "mug", 1), entry("e2", "broken", 1)), pricedAt)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestPriceCart_DoesNotMutateCart(t *testing.T) {
	agg := NewAggregator(newMockProducts(product("mug", "12.5", 5)), pricing.DefaultShipping(), 0)
	cart := cartOf("u1", entry("e1", "mug", 1))

	_, err := agg.PriceCart(context.Background(), cart, pricedAt)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartEntry{entry("e1", "mug", 1)}, cart.Entries)
}
