package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/adapter/storage"
	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/pricing"
)

type cartFixture struct {
	svc     *CartService
	catalog *storage.MemoryCatalog
	carts   *storage.MemoryCartStore
}

func newCartFixture(t *testing.T, products ...domain.Product) cartFixture {
	t.Helper()
	catalog := storage.NewMemoryCatalog()
	for _, p := range products {
		require.NoError(t, catalog.SaveProduct(context.Background(), p))
	}
	carts := storage.NewMemoryCartStore()

	var seq atomic.Int64
	svc := NewCartService(
		carts,
		catalog,
		NewAggregator(catalog, pricing.DefaultShipping(), 4),
		zap.NewNop(),
		WithClock(func() time.Time { return pricedAt }),
		WithIDGenerator(func() string { return fmt.Sprintf("entry-%d", seq.Add(1)) }),
	)
	return cartFixture{svc: svc, catalog: catalog, carts: carts}
}

func TestAddToCart_MergesByProduct(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 5), product("tee", "20", 5))
	ctx := context.Background()

	res, err := f.svc.AddToCart(ctx, "u1", "mug", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CartItemCount)

	_, err = f.svc.AddToCart(ctx, "u1", "tee", 2)
	require.NoError(t, err)

	res, err = f.svc.AddToCart(ctx, "u1", "mug", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.CartItemCount)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "mug", res.Entries[0].ProductID)
	assert.Equal(t, 3, res.Entries[0].Quantity)
	assert.Equal(t, "entry-1", res.Entries[0].ID, "merge keeps the entry id")
}

func TestAddToCart_Rejections(t *testing.T) {
	retired := product("retired", "10", 5)
	retired.IsActive = false
	f := newCartFixture(t, product("empty", "10", 0), retired)
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    string
		productID string
		qty       int
		want      error
	}{
		{"missing user", "", "empty", 1, domain.ErrInvalidUserID},
		{"missing product id", "u1", " ", 1, domain.ErrInvalidProductID},
		{"zero quantity", "u1", "empty", 0, domain.ErrInvalidQuantity},
		{"negative quantity", "u1", "empty", -2, domain.ErrInvalidQuantity},
		{"unknown product", "u1", "ghost", 1, domain.ErrProductNotFound},
		{"inactive product", "u1", "retired", 1, domain.ErrProductInactive},
		{"out of stock", "u1", "empty", 1, domain.ErrOutOfStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddToCart(ctx, tt.userID, tt.productID, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := f.svc.GetCartCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddToCart_DoesNotReserveStock(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 1))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "mug", 1)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u2", "mug", 1)
	require.NoError(t, err)

	p, err := f.catalog.GetProduct(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, 1, p.AggregateStock)
}

func TestUpdateCartItem(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 5), product("tee", "20", 5))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "mug", 1)
	require.NoError(t, err)
	res, err := f.svc.AddToCart(ctx, "u1", "tee", 1)
	require.NoError(t, err)
	mugID := res.Entries[0].ID

	require.NoError(t, f.svc.UpdateCartItem(ctx, "u1", mugID, 4))
	cart, err := f.carts.LoadCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Entries[0].Quantity)
	assert.Equal(t, "mug", cart.Entries[0].ProductID, "position is kept")

	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "u1", mugID, -1), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "u1", "nope", 1), domain.ErrCartItemNotFound)

	assert.ErrorIs(t, f.svc.UpdateCartItem(ctx, "u1", mugID, 0), domain.ErrInvalidQuantity)
	count, err := f.svc.GetCartCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, count, "rejected update leaves the cart unchanged")
}

func TestRemoveCartItem_Idempotent(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 5))
	ctx := context.Background()

	res, err := f.svc.AddToCart(ctx, "u1", "mug", 2)
	require.NoError(t, err)
	id := res.Entries[0].ID

	require.NoError(t, f.svc.RemoveCartItem(ctx, "u1", id))
	require.NoError(t, f.svc.RemoveCartItem(ctx, "u1", id))

	count, err := f.svc.GetCartCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClearCart(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 5), product("tee", "20", 5))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "mug", 2)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u1", "tee", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearCart(ctx, "u1"))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Zero(t, view.ItemCount)

	assert.ErrorIs(t, f.svc.ClearCart(ctx, ""), domain.ErrInvalidUserID)
}

func TestGetCart_DegradesOnStaleEntries(t *testing.T) {
	f := newCartFixture(t, product("mug", "10", 5), product("tee", "20", 5))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "mug", 3)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "u1", "tee", 1)
	require.NoError(t, err)

	tee, err := f.catalog.GetProduct(ctx, "tee")
	require.NoError(t, err)
	tee.IsActive = false
	require.NoError(t, f.catalog.SaveProduct(ctx, tee))

	view, err := f.svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "35.99", view.Summary().Total)
	assert.Equal(t, 3, view.ItemCount)
	require.Len(t, view.Unavailable, 1)
	assert.Equal(t, "tee", view.Unavailable[0].ProductID)

	count, err := f.svc.GetCartCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "count includes unavailable entries")
}

func TestGetCart_UnknownUserIsEmpty(t *testing.T) {
	f := newCartFixture(t)

	view, err := f.svc.GetCart(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.True(t, view.Subtotal.Equal(decimal.Zero))
	assert.Zero(t, view.ItemCount)
}

func TestAddToCart_ConcurrentSameUser(t *testing.T) {
	f := newCartFixture(t, product("mug", "12", 5))
	ctx := context.Background()

	const adds = 64
	var wg sync.WaitGroup
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddToCart(ctx, "u1", "mug", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := f.svc.GetCartCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, adds, count)
}
