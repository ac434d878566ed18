package domain

import "time"

// Currency is the storefront's single supported currency. Prices are stored
// in millimes (1/1000 TND).
const Currency = "TND"

// Product is the catalog's view of a sellable item. The cart/checkout core
// only reads it; catalog CRUD lives outside this service.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Origin    string    `json:"origin,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	UpdatedAt time.Time `json:"updated_at"`
}
