package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shop-cart/internal/adapter/storage"
	"github.com/rl1809/shop-cart/internal/core/domain"
	"github.com/rl1809/shop-cart/internal/core/service"
	"github.com/rl1809/shop-cart/internal/logger"
	"github.com/rl1809/shop-cart/internal/port"
)

const (
	itemID = "flash-sale-item"
	size   = "M"
)

func main() {
	redisAddr := flag.String("redis", "", "redis address; in-memory ledger when empty")
	initialStock := flag.Int("stock", 20, "initial stock of the size under test")
	totalRequests := flag.Int("requests", 50, "concurrent decrement requests")
	flag.Parse()

	log, err := logger.New(logger.Options{Service: "stress-test", Env: "dev", Level: "warn"})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	var (
		catalog     port.Catalog          = storage.NewMemoryCatalog()
		idempotency port.IdempotencyStore = storage.NewMemoryIdempotency()
	)
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		catalog = storage.NewRedisCatalog(rdb)
		idempotency = storage.NewRedisIdempotency(rdb)
	}

	err = catalog.SaveProduct(ctx, domain.Product{
		ID:             itemID,
		Name:           "Flash Sale Item",
		BasePrice:      decimal.NewFromInt(99),
		Variants:       []domain.Variant{{Size: size, Stock: *initialStock}},
		AggregateStock: *initialStock,
		IsActive:       true,
	})
	if err != nil {
		log.Fatal("failed to seed product", zap.Error(err))
	}

	journal := storage.NewMemoryJournal()
	stock := service.NewStockService(catalog, idempotency, *totalRequests, log)
	workers := service.NewJournalWorkers(journal, catalog, log)
	workers.Start(4, stock.Movements())

	var successCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := stock.Decrement(ctx, uuid.NewString(), itemID, 1, size)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				failCount.Add(1)
			default:
				log.Error("unexpected decrement error", zap.Error(err))
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)
	stock.Close()
	workers.Wait()

	success := successCount.Load()
	fail := failCount.Load()
	expectedSuccess := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Journaled:        %d\n", len(journal.Movements()))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if int(success) == expectedSuccess && int(fail) == *totalRequests-expectedSuccess {
		fmt.Printf("PASS: exactly %d decrements succeeded\n", expectedSuccess)
	} else {
		fmt.Printf("FAIL: expected %d success/%d fail, got %d/%d\n",
			expectedSuccess, *totalRequests-expectedSuccess, success, fail)
		ok = false
	}

	p, err := catalog.GetProduct(ctx, itemID)
	if err != nil {
		log.Fatal("failed to read product", zap.Error(err))
	}
	remaining := *initialStock - expectedSuccess
	fmt.Printf("Final Stock:      aggregate=%d %s=%d\n", p.AggregateStock, size, p.Variants[0].Stock)
	if p.AggregateStock == remaining && p.Variants[0].Stock == remaining {
		fmt.Printf("PASS: stock settled at %d\n", remaining)
	} else {
		fmt.Printf("FAIL: expected stock %d\n", remaining)
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
}
