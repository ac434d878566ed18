// Package memory provides process-local repository implementations used in
// tests and single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// CartRepository implements repository.CartRepository with an in-process map.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

// NewCartRepository creates an empty in-memory cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*domain.Cart)}
}

// Get retrieves a cart by user ID.
func (r *CartRepository) Get(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return nil, apperrors.NotFound("cart", userID)
	}
	return cart.Clone(), nil
}

// Save stores a copy of the cart keyed by user ID.
func (r *CartRepository) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.UserID] = cart.Clone()
	return nil
}

// SaveIfVersion stores the cart only if the current stored version matches
// expectedVersion. A missing cart counts as version 0.
func (r *CartRepository) SaveIfVersion(_ context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	if current, ok := r.carts[cart.UserID]; ok {
		stored = current.Version
	}
	if stored != expectedVersion {
		return false, nil
	}

	r.carts[cart.UserID] = cart.Clone()
	return true, nil
}

// Delete removes a cart. Deleting an absent cart is a no-op.
func (r *CartRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, userID)
	return nil
}
