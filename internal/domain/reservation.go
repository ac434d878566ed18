package domain

import "time"

// Reservation status constants.
const (
	ReservationStatusActive    = "active"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

// Reservation is a temporary hold on product stock taken during checkout.
// The decrement it represents becomes permanent on confirm and is reversed
// on release. An active reservation that outlives its lease is released by
// the ledger's janitor, so stock can never be stranded by an abandoned
// checkout.
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsActive returns true if the reservation is still active.
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsExpired returns true if the reservation has passed its lease expiry.
func (r *Reservation) IsExpired() bool {
	return time.Now().UTC().After(r.ExpiresAt)
}
