package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shop-cart/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

// MySQLCatalog stores products and their variant counters. Every stock change runs as
// a conditional UPDATE, so the row lock taken by InnoDB is the serialization point.
type MySQLCatalog struct {
	db *sql.DB
}

func NewMySQLCatalog(db *sql.DB) *MySQLCatalog {
	return &MySQLCatalog{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (m *MySQLCatalog) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLCatalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var (
		p     domain.Product
		pct   decimal.NullDecimal
		start sql.NullTime
		end   sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, base_price, discount_percentage, discount_start, discount_end,
			total_stock, is_active, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.BasePrice, &pct, &start, &end,
		&p.AggregateStock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}

	if pct.Valid {
		p.Discount = &domain.Discount{Percentage: pct.Decimal}
		if start.Valid {
			t := start.Time
			p.Discount.StartTime = &t
		}
		if end.Valid {
			t := end.Time
			p.Discount.EndTime = &t
		}
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT size, stock FROM product_variants
		WHERE product_id = ? ORDER BY position`, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.Size, &v.Stock); err != nil {
			return domain.Product{}, fmt.Errorf("scan variant: %w", err)
		}
		p.Variants = append(p.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return domain.Product{}, fmt.Errorf("iterate variants: %w", err)
	}

	return p, nil
}

func (m *MySQLCatalog) SaveProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var (
		pct   decimal.NullDecimal
		start sql.NullTime
		end   sql.NullTime
	)
	if p.Discount != nil {
		pct = decimal.NewNullDecimal(p.Discount.Percentage)
		if p.Discount.StartTime != nil {
			start = sql.NullTime{Time: *p.Discount.StartTime, Valid: true}
		}
		if p.Discount.EndTime != nil {
			end = sql.NullTime{Time: *p.Discount.EndTime, Valid: true}
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, base_price, discount_percentage, discount_start, discount_end, total_stock, is_active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NOW(3), NOW(3))
		ON DUPLICATE KEY UPDATE name = VALUES(name), base_price = VALUES(base_price),
			discount_percentage = VALUES(discount_percentage), discount_start = VALUES(discount_start),
			discount_end = VALUES(discount_end), total_stock = VALUES(total_stock),
			is_active = VALUES(is_active), version = version + 1, updated_at = NOW(3)`,
		p.ID, p.Name, p.BasePrice, pct, start, end, p.AggregateStock, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("delete variants: %w", err)
	}
	for i, v := range p.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_variants (product_id, size, position, stock) VALUES (?, ?, ?, ?)`,
			p.ID, v.Size, i, v.Stock,
		); err != nil {
			return fmt.Errorf("insert variant: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLCatalog) IsInStock(ctx context.Context, productID, size string) (bool, error) {
	var (
		total   int
		variant sql.NullInt64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT p.total_stock, v.stock
		FROM products p
		LEFT JOIN product_variants v ON v.product_id = p.id AND v.size = ?
		WHERE p.id = ?`, size, productID,
	).Scan(&total, &variant)

	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrProductNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query stock: %w", err)
	}

	if size == "" {
		return total > 0, nil
	}
	return variant.Valid && variant.Int64 > 0, nil
}

func (m *MySQLCatalog) DecrementStock(ctx context.Context, productID string, quantity int, size string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockProduct(ctx, tx, productID); err != nil {
		return err
	}

	if size != "" {
		result, err := tx.ExecContext(ctx, `
			UPDATE product_variants
			SET stock = stock - ?
			WHERE product_id = ? AND size = ? AND stock >= ?`,
			quantity, productID, size, quantity,
		)
		if err != nil {
			return fmt.Errorf("update variant stock: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return m.explainRejected(ctx, tx, productID, size, quantity)
		}
	} else if err := requireNoVariants(ctx, tx, productID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET total_stock = total_stock - ?, version = version + 1, updated_at = NOW(3)
		WHERE id = ? AND total_stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return m.explainRejected(ctx, tx, productID, size, quantity)
	}

	return tx.Commit()
}

func (m *MySQLCatalog) IncrementStock(ctx context.Context, productID string, quantity int, size string) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockProduct(ctx, tx, productID); err != nil {
		return err
	}

	if size != "" {
		result, err := tx.ExecContext(ctx, `
			UPDATE product_variants
			SET stock = stock + ?
			WHERE product_id = ? AND size = ?`,
			quantity, productID, size,
		)
		if err != nil {
			return fmt.Errorf("update variant stock: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return m.explainRejected(ctx, tx, productID, size, quantity)
		}
	} else if err := requireNoVariants(ctx, tx, productID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET total_stock = total_stock + ?, version = version + 1, updated_at = NOW(3)
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrProductNotFound
	}

	return tx.Commit()
}

// lockProduct takes the product row lock before any variant row, the same order SaveProduct uses.
func lockProduct(ctx context.Context, tx *sql.Tx, productID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = ? FOR UPDATE`, productID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("lock product: %w", err)
	}
	return nil
}

func requireNoVariants(ctx context.Context, tx *sql.Tx, productID string) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_variants WHERE product_id = ?`, productID).Scan(&n); err != nil {
		return fmt.Errorf("count variants: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: size is required for product %s", domain.ErrUnknownVariant, productID)
	}
	return nil
}

// explainRejected turns a conditional update that matched no row into the domain error.
func (m *MySQLCatalog) explainRejected(ctx context.Context, tx *sql.Tx, productID, size string, quantity int) error {
	var total int
	err := tx.QueryRowContext(ctx, `SELECT total_stock FROM products WHERE id = ?`, productID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("query product stock: %w", err)
	}
	if size == "" {
		return &domain.InsufficientStockError{ProductID: productID, Available: total, Requested: quantity}
	}

	var stock int
	err = tx.QueryRowContext(ctx, `SELECT stock FROM product_variants WHERE product_id = ? AND size = ?`, productID, size).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", domain.ErrUnknownVariant, productID, size)
	}
	if err != nil {
		return fmt.Errorf("query variant stock: %w", err)
	}
	return &domain.InsufficientStockError{ProductID: productID, Size: size, Available: stock, Requested: quantity}
}

// MySQLJournal persists stock movements in the stock_movements table.
type MySQLJournal struct {
	db *sql.DB
}

func NewMySQLJournal(db *sql.DB) *MySQLJournal {
	return &MySQLJournal{db: db}
}

func (j *MySQLJournal) RecordMovement(ctx context.Context, mv domain.StockMovement) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, request_id, product_id, size, quantity, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.RequestID, mv.ProductID, mv.Size, mv.Quantity, string(mv.Kind), mv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}
