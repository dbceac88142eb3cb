package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

const (
	productKeyPrefix  = "product:"
	cartKeyPrefix     = "cart:"
	sizeFieldPrefix   = "size:"
	idempotencyKeyTTL = 24 * time.Hour
	maxCartRetries    = 16
)

// Script results: {code, available}.
const (
	scriptNotFound     = -1
	scriptUnknownSize  = -2
	scriptSizeRequired = -3
	scriptRejected     = 0
	scriptApplied      = 1
)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])
local size = ARGV[2]

if redis.call('EXISTS', key) == 0 then
	return {-1, 0}
end

local variants = tonumber(redis.call('HGET', key, 'variants') or '0')
if size == '' then
	if variants > 0 then
		return {-3, 0}
	end
	local stock = tonumber(redis.call('HGET', key, 'stock') or '0')
	if stock < quantity then
		return {0, stock}
	end
	redis.call('HINCRBY', key, 'stock', -quantity)
	return {1, stock - quantity}
end

local field = 'size:' .. size
local current = redis.call('HGET', key, field)
if not current then
	return {-2, 0}
end

current = tonumber(current)
if current < quantity then
	return {0, current}
end

redis.call('HINCRBY', key, field, -quantity)
redis.call('HINCRBY', key, 'stock', -quantity)
return {1, current - quantity}
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])
local size = ARGV[2]

if redis.call('EXISTS', key) == 0 then
	return {-1, 0}
end

local variants = tonumber(redis.call('HGET', key, 'variants') or '0')
if size == '' then
	if variants > 0 then
		return {-3, 0}
	end
	return {1, redis.call('HINCRBY', key, 'stock', quantity)}
end

local field = 'size:' .. size
if redis.call('HEXISTS', key, field) == 0 then
	return {-2, 0}
end

redis.call('HINCRBY', key, 'stock', quantity)
return {1, redis.call('HINCRBY', key, field, quantity)}
`)

// RedisCatalog keeps each product in one hash. Stock changes run as Lua scripts so the
// variant counter and the aggregate move together.
type RedisCatalog struct {
	client *redis.Client
}

func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

func productKey(id string) string { return productKeyPrefix + id }

func (r *RedisCatalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	fields, err := r.client.HGetAll(ctx, productKey(id)).Result()
	if err != nil {
		return domain.Product{}, fmt.Errorf("hgetall product: %w", err)
	}
	if len(fields) == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return productFromHash(id, fields)
}

func (r *RedisCatalog) SaveProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	key := productKey(p.ID)
	now := time.Now()
	created := now
	if raw, err := r.client.HGet(ctx, key, "created_at").Result(); err == nil {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			created = time.UnixMilli(ms)
		}
	}

	values, err := productToHash(p, created, now)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (r *RedisCatalog) IsInStock(ctx context.Context, productID, size string) (bool, error) {
	p, err := r.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.InStock(size), nil
}

func (r *RedisCatalog) DecrementStock(ctx context.Context, productID string, quantity int, size string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.runStockScript(ctx, decrementStockScript, productID, quantity, size)
}

func (r *RedisCatalog) IncrementStock(ctx context.Context, productID string, quantity int, size string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.runStockScript(ctx, incrementStockScript, productID, quantity, size)
}

func (r *RedisCatalog) runStockScript(ctx context.Context, script *redis.Script, productID string, quantity int, size string) error {
	result, err := script.Run(ctx, r.client, []string{productKey(productID)}, quantity, size).Int64Slice()
	if err != nil {
		return fmt.Errorf("stock script: %w", err)
	}
	if len(result) != 2 {
		return fmt.Errorf("stock script: unexpected reply %v", result)
	}

	switch result[0] {
	case scriptApplied:
		return nil
	case scriptRejected:
		return &domain.InsufficientStockError{
			ProductID: productID,
			Size:      size,
			Available: int(result[1]),
			Requested: quantity,
		}
	case scriptNotFound:
		return domain.ErrProductNotFound
	case scriptUnknownSize:
		return fmt.Errorf("%w: %s/%s", domain.ErrUnknownVariant, productID, size)
	case scriptSizeRequired:
		return fmt.Errorf("%w: size is required for product %s", domain.ErrUnknownVariant, productID)
	default:
		return fmt.Errorf("stock script: unexpected code %d", result[0])
	}
}

func productToHash(p domain.Product, created, updated time.Time) (map[string]any, error) {
	sizes := make([]string, 0, len(p.Variants))
	for _, v := range p.Variants {
		sizes = append(sizes, v.Size)
	}
	sizesJSON, err := json.Marshal(sizes)
	if err != nil {
		return nil, fmt.Errorf("encode sizes: %w", err)
	}

	values := map[string]any{
		"name":           p.Name,
		"base_price":     p.BasePrice.String(),
		"active":         boolField(p.IsActive),
		"stock":          p.AggregateStock,
		"variants":       len(p.Variants),
		"sizes":          string(sizesJSON),
		"discount_pct":   "",
		"discount_start": "",
		"discount_end":   "",
		"created_at":     created.UnixMilli(),
		"updated_at":     updated.UnixMilli(),
	}
	if d := p.Discount; d != nil {
		values["discount_pct"] = d.Percentage.String()
		values["discount_start"] = timeField(d.StartTime)
		values["discount_end"] = timeField(d.EndTime)
	}
	for _, v := range p.Variants {
		values[sizeFieldPrefix+v.Size] = v.Stock
	}
	return values, nil
}

func productFromHash(id string, fields map[string]string) (domain.Product, error) {
	p := domain.Product{
		ID:       id,
		Name:     fields["name"],
		IsActive: fields["active"] == "1",
	}

	var err error
	if p.BasePrice, err = decimal.NewFromString(fields["base_price"]); err != nil {
		return domain.Product{}, fmt.Errorf("decode base_price: %w", err)
	}
	if p.AggregateStock, err = strconv.Atoi(fields["stock"]); err != nil {
		return domain.Product{}, fmt.Errorf("decode stock: %w", err)
	}

	if raw := fields["discount_pct"]; raw != "" {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Product{}, fmt.Errorf("decode discount: %w", err)
		}
		p.Discount = &domain.Discount{
			Percentage: pct,
			StartTime:  parseTimeField(fields["discount_start"]),
			EndTime:    parseTimeField(fields["discount_end"]),
		}
	}

	var sizes []string
	if raw := fields["sizes"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
			return domain.Product{}, fmt.Errorf("decode sizes: %w", err)
		}
	}
	for _, size := range sizes {
		stock, err := strconv.Atoi(fields[sizeFieldPrefix+size])
		if err != nil {
			return domain.Product{}, fmt.Errorf("decode variant %s: %w", size, err)
		}
		p.Variants = append(p.Variants, domain.Variant{Size: size, Stock: stock})
	}

	if t := parseTimeField(fields["created_at"]); t != nil {
		p.CreatedAt = *t
	}
	if t := parseTimeField(fields["updated_at"]); t != nil {
		p.UpdatedAt = *t
	}
	return p, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func timeField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTimeField(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

// RedisCartStore keeps each cart as one JSON document. Updates use WATCH/MULTI and retry
// when another writer got there first.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCartStore builds a cart store. A zero ttl keeps carts forever.
func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl}
}

func cartKey(userID string) string { return cartKeyPrefix + userID }

func (s *RedisCartStore) LoadCart(ctx context.Context, userID string) (domain.Cart, error) {
	return loadCart(ctx, s.client, userID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadCart(ctx context.Context, c getter, userID string) (domain.Cart, error) {
	raw, err := c.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewCart(userID), nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	cart.UserID = userID
	return cart, nil
}

func (s *RedisCartStore) UpdateCart(ctx context.Context, userID string, mutate func(*domain.Cart) error) (domain.Cart, error) {
	key := cartKey(userID)
	var result domain.Cart

	txf := func(tx *redis.Tx) error {
		cart, err := loadCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&cart); err != nil {
			return err
		}
		raw, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = cart
		return nil
	}

	for i := 0; i < maxCartRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Cart{}, err
		}
		result.Entries = result.Snapshot()
		return result, nil
	}
	return domain.Cart{}, fmt.Errorf("update cart %s: too much contention", userID)
}

type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (r *RedisIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, "idem:"+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisIdempotency) DeleteIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, "idem:"+key).Err()
}
