package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/port"
)

const journalWriteTimeout = 5 * time.Second

// JournalWorkers drain the movement queue into the journal. A decrement that cannot be
// journaled is handed back to the ledger.
type JournalWorkers struct {
	journal port.MovementJournal
	ledger  port.InventoryLedger
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewJournalWorkers(journal port.MovementJournal, ledger port.InventoryLedger, logger *zap.Logger) *JournalWorkers {
	return &JournalWorkers{journal: journal, ledger: ledger, logger: logger}
}

// Start launches count workers. They stop once queue is closed and drained.
func (w *JournalWorkers) Start(count int, queue <-chan domain.StockMovement) {
	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop(id, queue)
		}(i)
	}
	w.logger.Info("journal workers started", zap.Int("count", count))
}

func (w *JournalWorkers) Wait() {
	w.wg.Wait()
}

func (w *JournalWorkers) loop(id int, queue <-chan domain.StockMovement) {
	log := w.logger.With(zap.Int("worker", id))
	for mv := range queue {
		w.handle(log, mv)
	}
}

func (w *JournalWorkers) handle(log *zap.Logger, mv domain.StockMovement) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("movement_id", mv.ID),
		zap.String("product_id", mv.ProductID),
		zap.String("size", mv.Size),
		zap.Int("quantity", mv.Quantity),
		zap.String("kind", string(mv.Kind)),
	}

	err := w.journal.RecordMovement(ctx, mv)
	if err == nil {
		log.Debug("movement recorded", fields...)
		return
	}
	log.Error("failed to record movement", append(fields, zap.Error(err))...)

	if mv.Kind != domain.MovementDecrement {
		return
	}
	if rollbackErr := w.ledger.IncrementStock(ctx, mv.ProductID, mv.Quantity, mv.Size); rollbackErr != nil {
		log.Error("CRITICAL rollback failed", append(fields, zap.Error(rollbackErr))...)
		return
	}
	log.Warn("rolled back stock", fields...)
}
