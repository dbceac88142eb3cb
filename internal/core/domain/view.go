package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReasonProductNotFound = "product_not_found"
	ReasonProductInactive = "product_inactive"

	StockOutOfStock   = "out_of_stock"
	StockInsufficient = "insufficient_stock"
)

// CartLine is one priced row of a cart view. Unavailable lines carry a Reason and no prices.
type CartLine struct {
	EntryID        string
	ProductID      string
	Name           string
	Quantity       int
	AddedAt        time.Time
	BasePrice      decimal.Decimal
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	LineTotal      decimal.Decimal
	StockStatus    string
	Reason         string
}

type CartView struct {
	UserID      string
	Lines       []CartLine
	Unavailable []CartLine
	ItemCount   int
	Subtotal    decimal.Decimal
	Shipping    decimal.Decimal
	Total       decimal.Decimal
}

type CartSummary struct {
	ItemCount int    `json:"itemCount"`
	Subtotal  string `json:"subtotal"`
	Shipping  string `json:"shipping"`
	Total     string `json:"total"`
}

// Summary rounds the totals to two places for presentation.
func (v CartView) Summary() CartSummary {
	return CartSummary{
		ItemCount: v.ItemCount,
		Subtotal:  v.Subtotal.StringFixed(2),
		Shipping:  v.Shipping.StringFixed(2),
		Total:     v.Total.StringFixed(2),
	}
}
