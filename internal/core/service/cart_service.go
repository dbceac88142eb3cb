package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/port"
)

type AddResult struct {
	CartItemCount int
	Entries       []domain.CartEntry
}

// CartService is the external surface of the cart. Adding checks stock but never reserves it.
type CartService struct {
	carts      port.CartRepository
	catalog    port.Catalog
	aggregator *Aggregator
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

type CartOption func(*CartService)

func WithClock(now func() time.Time) CartOption {
	return func(s *CartService) { s.now = now }
}

func WithIDGenerator(newID func() string) CartOption {
	return func(s *CartService) { s.newID = newID }
}

func NewCartService(carts port.CartRepository, catalog port.Catalog, aggregator *Aggregator, logger *zap.Logger, opts ...CartOption) *CartService {
	s := &CartService{
		carts:      carts,
		catalog:    catalog,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CartService) GetCart(ctx context.Context, userID string) (domain.CartView, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.CartView{}, domain.ErrInvalidUserID
	}

	cart, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("load cart: %w", err)
	}

	view, err := s.aggregator.PriceCart(ctx, cart, s.now())
	if err != nil {
		return domain.CartView{}, err
	}
	if len(view.Unavailable) > 0 {
		s.logger.Debug("cart has unavailable lines",
			zap.String("user_id", userID),
			zap.Int("unavailable", len(view.Unavailable)),
		)
	}
	return view, nil
}

func (s *CartService) AddToCart(ctx context.Context, userID, productID string, quantity int) (AddResult, error) {
	if strings.TrimSpace(userID) == "" {
		return AddResult{}, domain.ErrInvalidUserID
	}
	if strings.TrimSpace(productID) == "" {
		return AddResult{}, domain.ErrInvalidProductID
	}
	if quantity <= 0 {
		return AddResult{}, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return AddResult{}, err
	}
	if !product.IsActive {
		return AddResult{}, domain.ErrProductInactive
	}

	inStock, err := s.catalog.IsInStock(ctx, productID, "")
	if err != nil {
		return AddResult{}, fmt.Errorf("stock check: %w", err)
	}
	if !inStock {
		return AddResult{}, domain.ErrOutOfStock
	}

	cart, err := s.carts.UpdateCart(ctx, userID, func(c *domain.Cart) error {
		c.Add(productID, quantity, s.now(), s.newID)
		return nil
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("update cart: %w", err)
	}

	s.logger.Info("item added to cart",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return AddResult{CartItemCount: cart.ItemCount(), Entries: cart.Entries}, nil
}

// UpdateCartItem sets the quantity of the entry with entryID. Use RemoveCartItem to drop it.
func (s *CartService) UpdateCartItem(ctx context.Context, userID, entryID string, quantity int) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := s.carts.UpdateCart(ctx, userID, func(c *domain.Cart) error {
		entry, ok := c.EntryByID(entryID)
		if !ok {
			return domain.ErrCartItemNotFound
		}
		c.SetQuantity(entry.ProductID, quantity)
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCartItemNotFound) {
			return err
		}
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

// RemoveCartItem drops the entry with entryID. Removing an absent entry succeeds.
func (s *CartService) RemoveCartItem(ctx context.Context, userID, entryID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}

	_, err := s.carts.UpdateCart(ctx, userID, func(c *domain.Cart) error {
		if entry, ok := c.EntryByID(entryID); ok {
			c.Remove(entry.ProductID)
			c.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}

	_, err := s.carts.UpdateCart(ctx, userID, func(c *domain.Cart) error {
		c.Clear()
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.logger.Info("cart cleared", zap.String("user_id", userID))
	return nil
}

// GetCartCount sums the quantity of every entry, including ones whose product is gone.
func (s *CartService) GetCartCount(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.ErrInvalidUserID
	}

	cart, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load cart: %w", err)
	}
	return cart.ItemCount(), nil
}
