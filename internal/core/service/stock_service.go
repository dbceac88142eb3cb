package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/port"
)

// StockService applies ledger mutations once per request id and hands every applied
// movement to the journal workers.
type StockService struct {
	ledger        port.InventoryLedger
	idempotency   port.IdempotencyStore
	movementQueue chan domain.StockMovement
	logger        *zap.Logger
}

func NewStockService(ledger port.InventoryLedger, idempotency port.IdempotencyStore, queueSize int, logger *zap.Logger) *StockService {
	return &StockService{
		ledger:        ledger,
		idempotency:   idempotency,
		movementQueue: make(chan domain.StockMovement, queueSize),
		logger:        logger,
	}
}

func (s *StockService) IsInStock(ctx context.Context, productID, size string) (bool, error) {
	if strings.TrimSpace(productID) == "" {
		return false, domain.ErrInvalidProductID
	}
	return s.ledger.IsInStock(ctx, productID, size)
}

func (s *StockService) Decrement(ctx context.Context, requestID, productID string, quantity int, size string) error {
	return s.apply(ctx, domain.MovementDecrement, requestID, productID, quantity, size)
}

func (s *StockService) Restock(ctx context.Context, requestID, productID string, quantity int, size string) error {
	return s.apply(ctx, domain.MovementIncrement, requestID, productID, quantity, size)
}

func (s *StockService) apply(ctx context.Context, kind domain.MovementKind, requestID, productID string, quantity int, size string) error {
	if strings.TrimSpace(productID) == "" {
		return domain.ErrInvalidProductID
	}
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	idempotencyKey := fmt.Sprintf("stock:%s:%s", kind, requestID)
	ok, err := s.idempotency.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateRequest
	}

	if kind == domain.MovementDecrement {
		err = s.ledger.DecrementStock(ctx, productID, quantity, size)
	} else {
		err = s.ledger.IncrementStock(ctx, productID, quantity, size)
	}
	if err != nil {
		s.release(ctx, idempotencyKey)
		return err
	}

	movement := domain.StockMovement{
		ID:        uuid.NewString(),
		RequestID: requestID,
		ProductID: productID,
		Size:      size,
		Quantity:  quantity,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	select {
	case s.movementQueue <- movement:
		return nil
	default:
	}
	select {
	case s.movementQueue <- movement:
		return nil
	case <-ctx.Done():
	}

	// The movement never reaches the journal, so the ledger change is undone.
	if err := s.revert(context.WithoutCancel(ctx), movement); err != nil {
		s.logger.Error("CRITICAL revert of unqueued movement failed",
			zap.String("movement_id", movement.ID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return fmt.Errorf("revert unqueued movement: %w", err)
	}
	s.release(ctx, idempotencyKey)
	s.logger.Warn("movement not queued, ledger change reverted",
		zap.String("movement_id", movement.ID),
		zap.Error(ctx.Err()),
	)
	return ctx.Err()
}

func (s *StockService) revert(ctx context.Context, mv domain.StockMovement) error {
	if mv.Kind == domain.MovementDecrement {
		return s.ledger.IncrementStock(ctx, mv.ProductID, mv.Quantity, mv.Size)
	}
	return s.ledger.DecrementStock(ctx, mv.ProductID, mv.Quantity, mv.Size)
}

// release frees the request id of a call that left the ledger unchanged.
func (s *StockService) release(ctx context.Context, key string) {
	if err := s.idempotency.DeleteIdempotency(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("idempotency key not released",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *StockService) Movements() <-chan domain.StockMovement {
	return s.movementQueue
}

func (s *StockService) Close() {
	close(s.movementQueue)
}
