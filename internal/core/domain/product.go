package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Discount struct {
	Percentage decimal.Decimal
	StartTime  *time.Time
	EndTime    *time.Time
}

// ActiveAt reports whether now falls inside the discount window. Missing bounds are open.
func (d *Discount) ActiveAt(now time.Time) bool {
	if d == nil {
		return false
	}
	if d.StartTime != nil && now.Before(*d.StartTime) {
		return false
	}
	if d.EndTime != nil && now.After(*d.EndTime) {
		return false
	}
	return true
}

type Variant struct {
	Size  string
	Stock int
}

type Product struct {
	ID             string
	Name           string
	BasePrice      decimal.Decimal
	Discount       *Discount
	Variants       []Variant
	AggregateStock int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

func (p Product) variantIndex(size string) int {
	for i, v := range p.Variants {
		if v.Size == size {
			return i
		}
	}
	return -1
}

// Available returns the stock counter for size, or the aggregate when size is empty.
func (p Product) Available(size string) (int, bool) {
	if size == "" {
		return p.AggregateStock, true
	}
	i := p.variantIndex(size)
	if i < 0 {
		return 0, false
	}
	return p.Variants[i].Stock, true
}

func (p Product) InStock(size string) bool {
	n, ok := p.Available(size)
	return ok && n > 0
}

// Validate checks the catalog invariants a stored product must satisfy.
func (p Product) Validate() error {
	if p.ID == "" {
		return ErrInvalidProductID
	}
	if p.BasePrice.IsNegative() {
		return fmt.Errorf("%w: base price must be non-negative", ErrInvalidProduct)
	}
	if p.AggregateStock < 0 {
		return fmt.Errorf("%w: stock must be non-negative", ErrInvalidProduct)
	}
	if p.Discount != nil {
		pct := p.Discount.Percentage
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%w: discount percentage must be 0-100", ErrInvalidProduct)
		}
		if p.Discount.StartTime != nil && p.Discount.EndTime != nil && p.Discount.EndTime.Before(*p.Discount.StartTime) {
			return fmt.Errorf("%w: discount ends before it starts", ErrInvalidProduct)
		}
	}
	if len(p.Variants) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(p.Variants))
	sum := 0
	for _, v := range p.Variants {
		if v.Size == "" {
			return fmt.Errorf("%w: variant size is required", ErrInvalidProduct)
		}
		if _, dup := seen[v.Size]; dup {
			return fmt.Errorf("%w: duplicate variant size %q", ErrInvalidProduct, v.Size)
		}
		if v.Stock < 0 {
			return fmt.Errorf("%w: variant %q stock must be non-negative", ErrInvalidProduct, v.Size)
		}
		seen[v.Size] = struct{}{}
		sum += v.Stock
	}
	if sum != p.AggregateStock {
		return fmt.Errorf("%w: aggregate stock %d does not match variant total %d", ErrInvalidProduct, p.AggregateStock, sum)
	}
	return nil
}

// Decremented returns p with quantity removed from the size counter and the aggregate.
// p itself is left untouched so callers only commit on success.
func (p Product) Decremented(quantity int, size string) (Product, error) {
	if quantity <= 0 {
		return p, ErrInvalidQuantity
	}
	if size == "" && p.HasVariants() {
		return p, fmt.Errorf("%w: size is required for product %s", ErrUnknownVariant, p.ID)
	}
	available, ok := p.Available(size)
	if !ok {
		return p, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, p.ID, size)
	}
	if available < quantity {
		return p, &InsufficientStockError{ProductID: p.ID, Size: size, Available: available, Requested: quantity}
	}

	out := p.clone()
	if size != "" {
		out.Variants[out.variantIndex(size)].Stock -= quantity
	}
	out.AggregateStock -= quantity
	return out, nil
}

func (p Product) Incremented(quantity int, size string) (Product, error) {
	if quantity <= 0 {
		return p, ErrInvalidQuantity
	}
	if size == "" && p.HasVariants() {
		return p, fmt.Errorf("%w: size is required for product %s", ErrUnknownVariant, p.ID)
	}
	if _, ok := p.Available(size); !ok {
		return p, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, p.ID, size)
	}

	out := p.clone()
	if size != "" {
		out.Variants[out.variantIndex(size)].Stock += quantity
	}
	out.AggregateStock += quantity
	return out, nil
}

func (p Product) clone() Product {
	out := p
	if p.Variants != nil {
		out.Variants = append([]Variant(nil), p.Variants...)
	}
	if p.Discount != nil {
		d := *p.Discount
		out.Discount = &d
	}
	return out
}
