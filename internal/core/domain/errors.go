package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product not available")
	ErrUnknownVariant    = errors.New("unknown variant")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrInvalidUserID     = errors.New("user id is required")
	ErrInvalidProductID  = errors.New("product id is required")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// InsufficientStockError reports a rejected decrement. It matches ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Size != "" {
		return fmt.Sprintf("insufficient stock for %s/%s: available %d, requested %d", e.ProductID, e.Size, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindInsufficientStock
	KindProductInactive
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case KindProductInactive:
		return "PRODUCT_INACTIVE"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// KindOf classifies err for the transport layers. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrCartItemNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidUserID), errors.Is(err, ErrInvalidProductID),
		errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidProduct),
		errors.Is(err, ErrUnknownVariant):
		return KindValidation
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrOutOfStock):
		return KindInsufficientStock
	case errors.Is(err, ErrProductInactive):
		return KindProductInactive
	case errors.Is(err, ErrDuplicateRequest):
		return KindConflict
	default:
		return KindInternal
	}
}
