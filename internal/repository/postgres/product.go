package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/pkg/database"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// ProductRepository implements repository.ProductReader and
// repository.StockStore against the products table. Stock lives on the
// product row, so the conditional decrement is a single UPDATE.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetProduct retrieves a product by ID.
func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT id, name, category, origin, image_url, price, stock, updated_at
		FROM products
		WHERE id = $1`

	var p domain.Product
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Origin,
		&p.ImageURL,
		&p.Price,
		&p.Stock,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// Available returns the current stock count for the product.
func (r *ProductRepository) Available(ctx context.Context, productID string) (int, error) {
	query := `SELECT stock FROM products WHERE id = $1`

	var stock int
	err := r.pool.QueryRow(ctx, query, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NotFound("product", productID)
		}
		return 0, fmt.Errorf("get product stock: %w", err)
	}

	return stock, nil
}

// TryDecrement atomically decrements stock iff enough remains. The WHERE
// guard makes the check-and-decrement a single atomic statement; zero rows
// affected means either not enough stock or an unknown product.
func (r *ProductRepository) TryDecrement(ctx context.Context, productID string, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1`

	ct, err := r.pool.Exec(ctx, query, quantity, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// Distinguish missing product from insufficient stock.
		if _, err := r.Available(ctx, productID); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// Increment restores stock by quantity.
func (r *ProductRepository) Increment(ctx context.Context, productID string, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $1, updated_at = now()
		WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", productID)
	}

	return nil
}
