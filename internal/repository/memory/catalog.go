package memory

import (
	"context"
	"sync"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// Catalog implements repository.ProductReader and repository.StockStore over
// an in-process product map. TryDecrement is atomic under the catalog mutex.
type Catalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

// NewCatalog creates a catalog seeded with the given products.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]*domain.Product, len(products))}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

// GetProduct retrieves a product by ID.
func (c *Catalog) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return nil, apperrors.NotFound("product", productID)
	}
	cp := *p
	return &cp, nil
}

// Available returns the current stock count for the product.
func (c *Catalog) Available(_ context.Context, productID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return 0, apperrors.NotFound("product", productID)
	}
	return p.Stock, nil
}

// TryDecrement atomically decrements stock iff enough remains.
func (c *Catalog) TryDecrement(_ context.Context, productID string, quantity int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return false, apperrors.NotFound("product", productID)
	}
	if p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	return true, nil
}

// Increment restores stock by quantity.
func (c *Catalog) Increment(_ context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return apperrors.NotFound("product", productID)
	}
	p.Stock += quantity
	return nil
}
