package port

import (
	"context"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

type ProductRepository interface {
	// GetProduct returns domain.ErrProductNotFound when id is unknown
	GetProduct(ctx context.Context, id string) (domain.Product, error)

	// SaveProduct creates or replaces a product after validating its invariants
	SaveProduct(ctx context.Context, product domain.Product) error
}

type InventoryLedger interface {
	// IsInStock reports whether the size counter (aggregate when size is empty) is positive.
	// An unknown size is reported as false, not as an error.
	IsInStock(ctx context.Context, productID, size string) (bool, error)

	// DecrementStock atomically checks and subtracts quantity from the size counter and the aggregate
	DecrementStock(ctx context.Context, productID string, quantity int, size string) error

	// IncrementStock restores stock (restock or cancellation)
	IncrementStock(ctx context.Context, productID string, quantity int, size string) error
}

// Catalog is a backend that owns both product documents and their stock counters.
type Catalog interface {
	ProductRepository
	InventoryLedger
}

type CartRepository interface {
	// LoadCart returns the user's cart, empty when the user has none yet
	LoadCart(ctx context.Context, userID string) (domain.Cart, error)

	// UpdateCart applies mutate to the current cart and commits the result atomically.
	// No commit happens when mutate returns an error.
	UpdateCart(ctx context.Context, userID string, mutate func(*domain.Cart) error) (domain.Cart, error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// DeleteIdempotency releases a key so the request can be retried
	DeleteIdempotency(ctx context.Context, key string) error
}

type MovementJournal interface {
	// RecordMovement persists an applied stock movement
	RecordMovement(ctx context.Context, movement domain.StockMovement) error
}
