package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/shop-cart/internal/adapter/handler"
	"github.com/rl1809/shop-cart/internal/adapter/storage"
	"github.com/rl1809/shop-cart/internal/config"
	"github.com/rl1809/shop-cart/internal/core/pricing"
	"github.com/rl1809/shop-cart/internal/core/service"
	"github.com/rl1809/shop-cart/internal/logger"
	"github.com/rl1809/shop-cart/internal/port"
	"github.com/rl1809/shop-cart/internal/shutdown"
)

const cartTTL = 30 * 24 * time.Hour

type backends struct {
	catalog     port.Catalog
	carts       port.CartRepository
	idempotency port.IdempotencyStore
	journal     port.MovementJournal
	closers     []func() error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Options{Service: "shop-cart", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range b.closers {
			c()
		}
		log.Info("connections closed")
	}()

	shipping := pricing.FlatRate{Threshold: cfg.ShippingFreeThreshold, Fee: cfg.ShippingFlatFee}
	aggregator := service.NewAggregator(b.catalog, shipping, cfg.PricingConcurrency)
	cartService := service.NewCartService(b.carts, b.catalog, aggregator, log.Named("cart"))
	stockService := service.NewStockService(b.catalog, b.idempotency, cfg.QueueSize, log.Named("stock"))

	workers := service.NewJournalWorkers(b.journal, b.catalog, log.Named("journal"))
	workers.Start(cfg.WorkerCount, stockService.Movements())

	grpcServer, healthServer := handler.NewGRPCServer(handler.NewGRPCHandler(cartService, log.Named("grpc")), log.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	httpHandler := handler.NewHTTPHandler(cartService, stockService, b.catalog,
		handler.HeaderIdentity{Header: "X-User-ID"}, log.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown", zap.Error(err))
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	stockService.Close()
	workers.Wait()
	log.Info("workers stopped")
	return err
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{
		catalog:     storage.NewMemoryCatalog(),
		carts:       storage.NewMemoryCartStore(),
		idempotency: storage.NewMemoryIdempotency(),
		journal:     storage.NewMemoryJournal(),
	}

	if cfg.UsesMySQL() {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		b.closers = append(b.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		log.Info("connected to mysql")

		catalog := storage.NewMySQLCatalog(db)
		if err := catalog.Migrate(ctx); err != nil {
			return nil, err
		}
		b.catalog = catalog
		b.journal = storage.NewMySQLJournal(db)
	}

	if cfg.UsesRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		b.closers = append(b.closers, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.Info("connected to redis")

		b.idempotency = storage.NewRedisIdempotency(rdb)
		if cfg.CatalogStore == config.StoreRedis {
			b.catalog = storage.NewRedisCatalog(rdb)
		}
		if cfg.CartStore == config.StoreRedis {
			b.carts = storage.NewRedisCartStore(rdb, cartTTL)
		}
	}

	log.Info("backends ready",
		zap.String("catalog", cfg.CatalogStore),
		zap.String("carts", cfg.CartStore),
	)
	return b, nil
}
