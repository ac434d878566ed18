// Package ledger tracks stock reservations for checkout. Every reservation
// holds a lease; unconfirmed leases past their TTL are released back to stock
// by a background janitor.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// Line is a single product/quantity pair to reserve.
type Line struct {
	ProductID string
	Quantity  int
}

// Ledger serializes stock movements per product and remembers active leases.
// The store does the actual atomic decrement; the ledger adds per-product
// ordering, multi-product all-or-nothing reservation, and lease expiry.
type Ledger struct {
	store  repository.StockStore
	logger *slog.Logger
	ttl    time.Duration

	mu           sync.Mutex
	productLocks map[string]*sync.Mutex
	leases       map[string]*domain.Reservation
}

// New creates a ledger over the given stock store. ttl bounds how long an
// unconfirmed reservation may hold stock.
func New(store repository.StockStore, logger *slog.Logger, ttl time.Duration) *Ledger {
	return &Ledger{
		store:        store,
		logger:       logger,
		ttl:          ttl,
		productLocks: make(map[string]*sync.Mutex),
		leases:       make(map[string]*domain.Reservation),
	}
}

// lockFor returns the mutex serializing movements for one product,
// creating it on first use.
func (l *Ledger) lockFor(productID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.productLocks[productID]
	if !ok {
		m = &sync.Mutex{}
		l.productLocks[productID] = m
	}
	return m
}

// Reserve takes quantity units of one product and returns the reservation ID.
// Returns apperrors.ErrInsufficientStock when not enough is available.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", apperrors.InvalidQuantity(fmt.Sprintf("quantity must be positive, got %d", quantity))
	}

	lock := l.lockFor(productID)
	lock.Lock()
	defer lock.Unlock()

	ok, err := l.store.TryDecrement(ctx, productID, quantity)
	if err != nil {
		return "", fmt.Errorf("reserve %s: %w", productID, err)
	}
	if !ok {
		available, availErr := l.store.Available(ctx, productID)
		if availErr != nil {
			available = 0
		}
		return "", apperrors.InsufficientStock(productID, quantity, available)
	}

	res := l.track(productID, quantity)

	l.logger.InfoContext(ctx, "stock reserved",
		slog.String("reservation_id", res.ID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	return res.ID, nil
}

// ReserveAll reserves every line or none. Product locks are taken in sorted
// productID order so two overlapping multi-product reservations can never
// deadlock. On any failure, lines already taken are returned to stock before
// the error is reported.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) ([]string, error) {
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("no lines to reserve")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity must be positive, got %d", line.Quantity))
		}
	}

	// Merge duplicate products so each lock is taken once.
	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		merged[line.ProductID] += line.Quantity
	}
	sorted := make([]Line, 0, len(merged))
	for productID, quantity := range merged {
		sorted = append(sorted, Line{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	locks := make([]*sync.Mutex, len(sorted))
	for i, line := range sorted {
		locks[i] = l.lockFor(line.ProductID)
		locks[i].Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	taken := make([]Line, 0, len(sorted))
	ids := make([]string, 0, len(sorted))

	for _, line := range sorted {
		ok, err := l.store.TryDecrement(ctx, line.ProductID, line.Quantity)
		if err != nil {
			l.compensate(ctx, taken, ids)
			return nil, fmt.Errorf("reserve %s: %w", line.ProductID, err)
		}
		if !ok {
			available, availErr := l.store.Available(ctx, line.ProductID)
			if availErr != nil {
				available = 0
			}
			l.compensate(ctx, taken, ids)
			return nil, apperrors.InsufficientStock(line.ProductID, line.Quantity, available)
		}

		res := l.track(line.ProductID, line.Quantity)
		taken = append(taken, line)
		ids = append(ids, res.ID)
	}

	l.logger.InfoContext(ctx, "stock reserved",
		slog.Int("line_count", len(ids)),
	)

	return ids, nil
}

// Release returns a reservation's stock. Releasing an unknown or already
// released reservation is a no-op, so compensation paths and the janitor can
// race without double-crediting stock.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	res, ok := l.claim(reservationID, domain.ReservationStatusReleased)
	if !ok {
		return nil
	}

	lock := l.lockFor(res.ProductID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.Increment(ctx, res.ProductID, res.Quantity); err != nil {
		// The stock credit failed; keep the lease so it can still be
		// released later or swept by the janitor once it expires.
		l.restore(res)
		return fmt.Errorf("release %s: %w", reservationID, err)
	}

	l.logger.InfoContext(ctx, "reservation released",
		slog.String("reservation_id", reservationID),
		slog.String("product_id", res.ProductID),
		slog.Int("quantity", res.Quantity),
	)

	return nil
}

// Confirm finalizes a reservation: the stock stays taken and the lease is
// retired. Returns apperrors.ErrNotFound for an unknown or no longer active
// reservation.
func (l *Ledger) Confirm(ctx context.Context, reservationID string) error {
	res, ok := l.claim(reservationID, domain.ReservationStatusConfirmed)
	if !ok {
		return apperrors.NotFound("reservation", reservationID)
	}

	l.logger.InfoContext(ctx, "reservation confirmed",
		slog.String("reservation_id", reservationID),
		slog.String("product_id", res.ProductID),
	)

	return nil
}

// Active reports whether the reservation currently holds stock.
func (l *Ledger) Active(reservationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.leases[reservationID]
	return ok && res.IsActive()
}

// Run drives the expiry janitor until ctx is canceled. Expired leases are
// released back to stock at most every interval.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := l.ReleaseExpired(ctx)
			if err != nil {
				l.logger.Error("lease expiry sweep error", slog.String("error", err.Error()))
			} else if released > 0 {
				l.logger.Info("expired reservations released", slog.Int("released", released))
			}
		}
	}
}

// ReleaseExpired releases every active lease past its deadline and returns
// how many were released.
func (l *Ledger) ReleaseExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	l.mu.Lock()
	var expired []*domain.Reservation
	for id, res := range l.leases {
		if res.IsActive() && now.After(res.ExpiresAt) {
			res.Status = domain.ReservationStatusExpired
			delete(l.leases, id)
			expired = append(expired, res)
		}
	}
	l.mu.Unlock()

	released := 0
	for _, res := range expired {
		lock := l.lockFor(res.ProductID)
		lock.Lock()
		err := l.store.Increment(ctx, res.ProductID, res.Quantity)
		lock.Unlock()
		if err != nil {
			// Put the lease back so the next sweep retries the credit.
			l.restore(res)
			l.logger.ErrorContext(ctx, "failed to release expired reservation",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		released++
	}

	return released, nil
}

// track records a new active lease. Callers hold the product lock.
func (l *Ledger) track(productID string, quantity int) *domain.Reservation {
	now := time.Now().UTC()
	res := &domain.Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		Status:    domain.ReservationStatusActive,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	}

	l.mu.Lock()
	l.leases[res.ID] = res
	l.mu.Unlock()

	return res
}

// claim removes an active lease from the ledger, marking it with the given
// terminal status. Returns false if the lease is unknown or already settled,
// guaranteeing each lease is settled exactly once. Settled leases leave the
// map so it stays bounded by in-flight checkouts.
func (l *Ledger) claim(reservationID, status string) (*domain.Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.leases[reservationID]
	if !ok || !res.IsActive() {
		return nil, false
	}
	res.Status = status
	delete(l.leases, reservationID)
	return res, true
}

// restore puts a claimed lease back as active after a failed stock credit,
// so a retried Release or the expiry janitor can credit it later.
func (l *Ledger) restore(res *domain.Reservation) {
	l.mu.Lock()
	res.Status = domain.ReservationStatusActive
	l.leases[res.ID] = res
	l.mu.Unlock()
}

// compensate returns already-taken lines to stock after a partial
// ReserveAll failure. Callers hold all involved product locks.
func (l *Ledger) compensate(ctx context.Context, taken []Line, ids []string) {
	for i := len(taken) - 1; i >= 0; i-- {
		if err := l.store.Increment(ctx, taken[i].ProductID, taken[i].Quantity); err != nil {
			l.logger.ErrorContext(ctx, "failed to compensate reservation",
				slog.String("product_id", taken[i].ProductID),
				slog.Int("quantity", taken[i].Quantity),
				slog.String("error", err.Error()),
			)
			continue
		}
		l.mu.Lock()
		if res, ok := l.leases[ids[i]]; ok {
			res.Status = domain.ReservationStatusReleased
			delete(l.leases, ids[i])
		}
		l.mu.Unlock()
	}
}
