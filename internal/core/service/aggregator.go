package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/pricing"
	"github.com/rl1809/shop-cart/internal/port"
)

const defaultPricingConcurrency = 8

// Aggregator prices a cart against live product state. It never writes.
type Aggregator struct {
	products      port.ProductRepository
	shipping      pricing.ShippingPolicy
	maxConcurrent int
}

func NewAggregator(products port.ProductRepository, shipping pricing.ShippingPolicy, maxConcurrent int) *Aggregator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultPricingConcurrency
	}
	return &Aggregator{
		products:      products,
		shipping:      shipping,
		maxConcurrent: maxConcurrent,
	}
}

// PriceCart joins the cart entries with their products. Missing and inactive products
// are reported in Unavailable and left out of every total.
func (a *Aggregator) PriceCart(ctx context.Context, cart domain.Cart, now time.Time) (domain.CartView, error) {
	entries := cart.Snapshot()
	resolved := make([]*domain.Product, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)
	for i, entry := range entries {
		g.Go(func() error {
			p, err := a.products.GetProduct(gctx, entry.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve product %s: %w", entry.ProductID, err)
			}
			resolved[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CartView{}, err
	}

	view := domain.CartView{
		UserID:   cart.UserID,
		Subtotal: decimal.Zero,
		Shipping: decimal.Zero,
	}
	for i, entry := range entries {
		p := resolved[i]
		line := domain.CartLine{
			EntryID:   entry.ID,
			ProductID: entry.ProductID,
			Quantity:  entry.Quantity,
			AddedAt:   entry.AddedAt,
		}

		switch {
		case p == nil:
			line.Reason = domain.ReasonProductNotFound
			view.Unavailable = append(view.Unavailable, line)
			continue
		case !p.IsActive:
			line.Name = p.Name
			line.Reason = domain.ReasonProductInactive
			view.Unavailable = append(view.Unavailable, line)
			continue
		}

		line.Name = p.Name
		line.BasePrice = p.BasePrice
		line.UnitPrice = pricing.EffectivePrice(*p, now)
		line.DiscountAmount = pricing.DiscountAmount(*p, now)
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(entry.Quantity)))
		line.StockStatus = stockStatus(*p, entry.Quantity)

		view.Lines = append(view.Lines, line)
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
		view.ItemCount += entry.Quantity
	}

	view.Shipping = a.shipping.Shipping(view.Subtotal)
	view.Total = view.Subtotal.Add(view.Shipping)
	return view, nil
}

func stockStatus(p domain.Product, quantity int) string {
	switch {
	case p.AggregateStock <= 0:
		return domain.StockOutOfStock
	case p.AggregateStock < quantity:
		return domain.StockInsufficient
	default:
		return ""
	}
}
