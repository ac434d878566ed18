package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amelbenhazem/SmartShopTn/pkg/database"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

func newTestProductRepo(t *testing.T) (*ProductRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewProductRepository(mock)
	return repo, mock
}

// --- GetProduct Tests ---

func TestProductRepository_GetProduct_Success(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT id, name, category").
		WithArgs("prod-001").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "category", "origin", "image_url", "price", "stock", "updated_at",
		}).AddRow(
			"prod-001", "Harissa artisanale", "epicerie", "Nabeul",
			"https://img.example.com/harissa.jpg", int64(4500), 12, now,
		))

	p, err := repo.GetProduct(context.Background(), "prod-001")
	require.NoError(t, err)
	assert.Equal(t, "Harissa artisanale", p.Name)
	assert.Equal(t, int64(4500), p.Price)
	assert.Equal(t, 12, p.Stock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetProduct_NotFound(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectQuery("SELECT id, name, category").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := repo.GetProduct(context.Background(), "missing")
	assert.Nil(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Available Tests ---

func TestProductRepository_Available(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectQuery("SELECT stock FROM products").
		WithArgs("prod-001").
		WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(7))

	stock, err := repo.Available(context.Background(), "prod-001")
	require.NoError(t, err)
	assert.Equal(t, 7, stock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- TryDecrement Tests ---

func TestProductRepository_TryDecrement_Success(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectExec("UPDATE products").
		WithArgs(3, "prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.TryDecrement(context.Background(), "prod-001", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_TryDecrement_InsufficientStock(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectExec("UPDATE products").
		WithArgs(50, "prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	// Zero rows affected; the follow-up read determines the product exists,
	// so the caller sees plain insufficiency.
	mock.ExpectQuery("SELECT stock FROM products").
		WithArgs("prod-001").
		WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(7))

	ok, err := repo.TryDecrement(context.Background(), "prod-001", 50)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_TryDecrement_UnknownProduct(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectExec("UPDATE products").
		WithArgs(1, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	mock.ExpectQuery("SELECT stock FROM products").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	ok, err := repo.TryDecrement(context.Background(), "missing", 1)
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Increment Tests ---

func TestProductRepository_Increment_Success(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectExec("UPDATE products").
		WithArgs(3, "prod-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Increment(context.Background(), "prod-001", 3)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Increment_QueryError(t *testing.T) {
	repo, mock := newTestProductRepo(t)

	mock.ExpectExec("UPDATE products").
		WithArgs(3, "prod-001").
		WillReturnError(errors.New("connection reset"))

	err := repo.Increment(context.Background(), "prod-001", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment stock")

	assert.NoError(t, mock.ExpectationsWereMet())
}
