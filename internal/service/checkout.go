package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/event"
	"github.com/amelbenhazem/SmartShopTn/internal/ledger"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// DefaultShippingAddress is used when the checkout request carries no address.
const DefaultShippingAddress = "Tunis, Tunisia"

var (
	checkoutAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartshop_checkout_attempts_total",
			Help: "Checkout attempts by outcome.",
		},
		[]string{"outcome"},
	)
	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartshop_checkout_duration_seconds",
			Help:    "End-to-end checkout duration.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// CheckoutInput holds the parameters for placing an order from the cart.
type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address"`
}

// CheckoutService turns a cart into an order: validate, reserve all stock,
// persist, confirm. Any failure after reservation releases every reserved
// line, so a failed checkout never leaks stock.
type CheckoutService struct {
	carts    repository.CartRepository
	catalog  repository.ProductReader
	orders   repository.OrderRepository
	ledger   *ledger.Ledger
	producer *event.Producer
	logger   *slog.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	carts repository.CartRepository,
	catalog repository.ProductReader,
	orders repository.OrderRepository,
	led *ledger.Ledger,
	producer *event.Producer,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		catalog:   catalog,
		orders:    orders,
		ledger:    led,
		producer:  producer,
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Checkout places an order from the user's cart. Concurrent checkouts for
// the same user are serialized; the second sees the emptied cart and fails
// with EmptyCart rather than double-ordering.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, input CheckoutInput) (*domain.Order, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	order, err := s.checkout(ctx, userID, input)
	checkoutDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		checkoutAttempts.WithLabelValues("success").Inc()
	case errors.Is(err, apperrors.ErrInsufficientStock):
		checkoutAttempts.WithLabelValues("insufficient_stock").Inc()
	case errors.Is(err, apperrors.ErrEmptyCart):
		checkoutAttempts.WithLabelValues("empty_cart").Inc()
	default:
		checkoutAttempts.WithLabelValues("error").Inc()
	}

	return order, err
}

func (s *CheckoutService) checkout(ctx context.Context, userID string, input CheckoutInput) (*domain.Order, error) {
	// Validating: the cart must exist and hold at least one line.
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.EmptyCart()
		}
		return nil, fmt.Errorf("load cart for checkout: %w", err)
	}
	if cart.IsEmpty() {
		return nil, apperrors.EmptyCart()
	}

	// Resolve every line against the catalog before touching stock. Prices
	// are fixed here; the order records what the user saw.
	items := make([]domain.OrderItem, 0, len(cart.Lines))
	lines := make([]ledger.Line, 0, len(cart.Lines))
	orderID := uuid.New().String()

	for _, line := range cart.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.NotFound("product", line.ProductID)
			}
			return nil, fmt.Errorf("resolve product %s: %w", line.ProductID, err)
		}

		items = append(items, domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
			Subtotal:  product.Price * int64(line.Quantity),
		})
		lines = append(lines, ledger.Line{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	// Reserving: all lines or none.
	reservationIDs, err := s.ledger.ReserveAll(ctx, lines)
	if err != nil {
		return nil, err
	}

	shippingAddress := input.ShippingAddress
	if shippingAddress == "" {
		shippingAddress = DefaultShippingAddress
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              orderID,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		Currency:        domain.Currency,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Total = order.ComputeTotal()

	// Persisting: a failed insert compensates every reservation.
	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseAll(ctx, reservationIDs, "order_persist_failed")
		return nil, apperrors.PersistenceFailure(err)
	}

	// Completed: reservations become permanent decrements.
	for _, id := range reservationIDs {
		if err := s.ledger.Confirm(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to confirm reservation",
				slog.String("reservation_id", id),
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// The cart served its purpose; losing this delete only leaves a stale
	// cart behind, it cannot double-charge.
	if err := s.carts.Delete(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("user_id", userID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout completed",
		slog.String("user_id", userID),
		slog.String("order_id", order.ID),
		slog.Int64("total", order.Total),
		slog.Int("item_count", len(order.Items)),
	)

	return order, nil
}

// releaseAll returns every reservation to stock.
func (s *CheckoutService) releaseAll(ctx context.Context, reservationIDs []string, reason string) {
	for _, id := range reservationIDs {
		if err := s.ledger.Release(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to release reservation during compensation",
				slog.String("reservation_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
	}

	s.logger.WarnContext(ctx, "checkout compensated",
		slog.Int("released_count", len(reservationIDs)),
		slog.String("reason", reason),
	)
}

// lockFor returns the mutex serializing checkouts for one user.
func (s *CheckoutService) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.userLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.userLocks[userID] = m
	}
	return m
}
