package domain

import "time"

// Cart holds the live shopping cart for one user.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// CartLine is one (product, quantity) pairing within a cart. Product details
// such as name and price are resolved from the catalog at read time, so a
// line never carries a stale price.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// FindLineIndex returns the index of the line for the given product, or -1.
// Insertion order of lines is preserved and user-visible.
func (c *Cart) FindLineIndex(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// QuantityOf returns the quantity currently in the cart for the given product,
// or 0 if the product is not in the cart.
func (c *Cart) QuantityOf(productID string) int {
	if i := c.FindLineIndex(productID); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

// Snapshot returns a defensive copy of the cart's lines. Mutations to the
// live cart after the snapshot is taken do not affect the returned slice.
func (c *Cart) Snapshot() []CartLine {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return lines
}

// Clone returns a deep copy of the cart. The clone shares nothing with the
// original, so either side can be mutated freely.
func (c *Cart) Clone() *Cart {
	clone := *c
	clone.Lines = c.Snapshot()
	return &clone
}
