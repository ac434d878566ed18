package repository

import (
	"context"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
// The cart can live in a process-local map, Redis, or a database row; the
// service layer only depends on this capability set.
type CartRepository interface {
	// Get retrieves a cart by its user ID. Returns apperrors.ErrNotFound if
	// the user has no stored cart.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save persists a cart, overwriting any existing cart for the user and
	// incrementing its version.
	Save(ctx context.Context, cart *domain.Cart) error

	// SaveIfVersion persists the cart only if the stored version still equals
	// expectedVersion. Returns false when another writer got there first.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes a cart by user ID. Deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) error
}

// ProductReader is the catalog collaborator consumed by the cart/checkout
// core: existence, price, and stock reads only. Catalog CRUD is out of scope.
type ProductReader interface {
	// GetProduct retrieves a product by ID. Returns apperrors.ErrNotFound if
	// the product does not exist.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

// StockStore is the ledger's persistence port: an atomic conditional
// decrement plus its inverse. Implementations must make TryDecrement a single
// atomic check-and-decrement with respect to concurrent calls for the same
// product.
type StockStore interface {
	// Available returns the current stock count for the product. Returns
	// apperrors.ErrNotFound for unknown products.
	Available(ctx context.Context, productID string) (int, error)

	// TryDecrement atomically decrements stock by quantity iff the current
	// stock is at least quantity. Returns false, leaving stock untouched,
	// when there is not enough.
	TryDecrement(ctx context.Context, productID string, quantity int) (bool, error)

	// Increment restores stock by quantity (reservation release).
	Increment(ctx context.Context, productID string, quantity int) error
}

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  string
	Status  string
	Page    int
	PerPage int
}

// OrderRepository defines the interface for order persistence operations.
// Orders are append-mostly: created once, then touched only by guarded
// status updates.
type OrderRepository interface {
	// Create inserts a new order and its items into the store atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier, including items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListByUser returns the user's orders most-recent-first, with the total count.
	ListByUser(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus changes the status of an order.
	UpdateStatus(ctx context.Context, id, status string) error
}
