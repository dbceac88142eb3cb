// Package pricing derives prices from live product state. Nothing here is stored or cached.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the base price reduced by the discount active at now.
func EffectivePrice(p domain.Product, now time.Time) decimal.Decimal {
	if !p.Discount.ActiveAt(now) {
		return p.BasePrice
	}
	return p.BasePrice.Mul(hundred.Sub(p.Discount.Percentage)).Div(hundred)
}

func DiscountAmount(p domain.Product, now time.Time) decimal.Decimal {
	return p.BasePrice.Sub(EffectivePrice(p, now))
}

type ShippingPolicy interface {
	Shipping(subtotal decimal.Decimal) decimal.Decimal
}

// FlatRate charges Fee unless the subtotal is strictly above Threshold.
type FlatRate struct {
	Threshold decimal.Decimal
	Fee       decimal.Decimal
}

func DefaultShipping() FlatRate {
	return FlatRate{
		Threshold: decimal.NewFromInt(50),
		Fee:       decimal.RequireFromString("5.99"),
	}
}

func (f FlatRate) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(f.Threshold) {
		return decimal.Zero
	}
	return f.Fee
}
