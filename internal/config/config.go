// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	MySQLDSN  string
	RedisAddr string

	// CatalogStore selects the product and ledger backend: memory, mysql or redis.
	CatalogStore string
	// CartStore selects the cart backend: memory or redis.
	CartStore string

	WorkerCount        int
	QueueSize          int
	PricingConcurrency int

	ShippingFreeThreshold decimal.Decimal
	ShippingFlatFee       decimal.Decimal

	ShutdownTimeout time.Duration
}

func Load() Config {
	return Config{
		AppEnv:                getEnv("APP_ENV", "dev"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:              getEnv("GRPC_ADDR", ":50051"),
		MySQLDSN:              getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/shop?parseTime=true"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		CatalogStore:          getStore("CATALOG_STORE", StoreMemory, StoreMemory, StoreMySQL, StoreRedis),
		CartStore:             getStore("CART_STORE", StoreMemory, StoreMemory, StoreRedis),
		WorkerCount:           getEnvInt("WORKER_COUNT", 10),
		QueueSize:             getEnvInt("QUEUE_SIZE", 10000),
		PricingConcurrency:    getEnvInt("PRICING_CONCURRENCY", 8),
		ShippingFreeThreshold: getEnvDecimal("SHIPPING_FREE_THRESHOLD", decimal.NewFromInt(50)),
		ShippingFlatFee:       getEnvDecimal("SHIPPING_FLAT_FEE", decimal.RequireFromString("5.99")),
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

// UsesMySQL reports whether any configured backend needs a MySQL connection.
func (c Config) UsesMySQL() bool {
	return c.CatalogStore == StoreMySQL
}

// UsesRedis reports whether any configured backend needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.CatalogStore == StoreRedis || c.CartStore == StoreRedis
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}

	return n
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}

	return d
}

// getEnvDuration accepts Go durations ("750ms") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return def
}

func getStore(key, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
