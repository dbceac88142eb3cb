package domain

import "time"

type MovementKind string

const (
	MovementDecrement MovementKind = "decrement"
	MovementIncrement MovementKind = "increment"
)

// StockMovement records one applied ledger mutation.
type StockMovement struct {
	ID        string
	RequestID string
	ProductID string
	Size      string
	Quantity  int
	Kind      MovementKind
	CreatedAt time.Time
}
