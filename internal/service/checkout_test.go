package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/ledger"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	"github.com/amelbenhazem/SmartShopTn/internal/repository/memory"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// --- Mock Order Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// memOrderRepository is a minimal in-process order store for happy paths.
type memOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrderRepository() *memOrderRepository {
	return &memOrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *memOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepository) ListByUser(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == filter.UserID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (r *memOrderRepository) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperrors.NotFound("order", id)
	}
	o.Status = status
	return nil
}

// --- Test Helpers ---

type checkoutFixture struct {
	svc     *CheckoutService
	carts   *memory.CartRepository
	catalog *memory.Catalog
	orders  repository.OrderRepository
	ledger  *ledger.Ledger
}

func newCheckoutFixture(t *testing.T, orders repository.OrderRepository) *checkoutFixture {
	t.Helper()
	carts := memory.NewCartRepository()
	catalog := memory.NewCatalog(testProducts()...)
	logger := newTestLogger()
	led := ledger.New(catalog, logger, time.Minute)
	if orders == nil {
		orders = newMemOrderRepository()
	}
	svc := NewCheckoutService(carts, catalog, orders, led, newTestProducer(), logger)
	return &checkoutFixture{svc: svc, carts: carts, catalog: catalog, orders: orders, ledger: led}
}

func (f *checkoutFixture) seedCart(t *testing.T, userID string, lines ...domain.CartLine) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.carts.Save(context.Background(), &domain.Cart{
		ID:        "cart-" + userID,
		UserID:    userID,
		Lines:     lines,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
}

// --- Tests ---

func TestCheckoutService_Checkout_Success(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	f.seedCart(t, "user-1",
		domain.CartLine{ProductID: "prod-1", Quantity: 2},
		domain.CartLine{ProductID: "prod-2", Quantity: 1},
	)

	order, err := f.svc.Checkout(ctx, "user-1", CheckoutInput{ShippingAddress: "5 Rue de Marseille, Tunis"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(2*2500+8970), order.Total)
	assert.Equal(t, domain.Currency, order.Currency)
	assert.Equal(t, "5 Rue de Marseille, Tunis", order.ShippingAddress)
	require.Len(t, order.Items, 2)

	// Stock permanently decremented.
	stock1, _ := f.catalog.Available(ctx, "prod-1")
	stock2, _ := f.catalog.Available(ctx, "prod-2")
	assert.Equal(t, 8, stock1)
	assert.Equal(t, 2, stock2)

	// Cart cleared.
	_, err = f.carts.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Order persisted.
	got, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Total, got.Total)
}

func TestCheckoutService_Checkout_DefaultShippingAddress(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	f.seedCart(t, "user-1", domain.CartLine{ProductID: "prod-1", Quantity: 1})

	order, err := f.svc.Checkout(context.Background(), "user-1", CheckoutInput{})
	require.NoError(t, err)
	assert.Equal(t, DefaultShippingAddress, order.ShippingAddress)
}

func TestCheckoutService_Checkout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	// No cart at all.
	_, err := f.svc.Checkout(context.Background(), "user-1", CheckoutInput{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)

	// Cart with no lines.
	f.seedCart(t, "user-2")
	_, err = f.svc.Checkout(context.Background(), "user-2", CheckoutInput{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)
}

func TestCheckoutService_Checkout_InsufficientStock_AllOrNothing(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	// prod-2 has only 3 in stock.
	f.seedCart(t, "user-1",
		domain.CartLine{ProductID: "prod-1", Quantity: 2},
		domain.CartLine{ProductID: "prod-2", Quantity: 5},
	)

	_, err := f.svc.Checkout(ctx, "user-1", CheckoutInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	// No partial decrement survived.
	stock1, _ := f.catalog.Available(ctx, "prod-1")
	stock2, _ := f.catalog.Available(ctx, "prod-2")
	assert.Equal(t, 10, stock1)
	assert.Equal(t, 3, stock2)

	// Cart untouched for retry.
	cart, err := f.carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2)
}

func TestCheckoutService_Checkout_PersistFailureReleasesStock(t *testing.T) {
	orders := &mockOrderRepository{}
	orders.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection lost"))

	f := newCheckoutFixture(t, orders)
	ctx := context.Background()

	f.seedCart(t, "user-1", domain.CartLine{ProductID: "prod-1", Quantity: 4})

	_, err := f.svc.Checkout(ctx, "user-1", CheckoutInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	// Reservation compensated.
	stock, _ := f.catalog.Available(ctx, "prod-1")
	assert.Equal(t, 10, stock)

	// Cart kept for retry.
	cart, err := f.carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)

	orders.AssertExpectations(t)
}

func TestCheckoutService_Checkout_UnknownProductInCart(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	f.seedCart(t, "user-1", domain.CartLine{ProductID: "withdrawn", Quantity: 1})

	_, err := f.svc.Checkout(ctx, "user-1", CheckoutInput{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// Two checkouts for the same user run one at a time; the loser sees the
// emptied cart and cannot place a duplicate order.
func TestCheckoutService_Checkout_ConcurrentSameUser(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	f.seedCart(t, "user-1", domain.CartLine{ProductID: "prod-1", Quantity: 2})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, "user-1", CheckoutInput{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, emptyCart int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrEmptyCart):
			emptyCart++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, emptyCart)

	// Stock decremented exactly once.
	stock, _ := f.catalog.Available(ctx, "prod-1")
	assert.Equal(t, 8, stock)
}

// Concurrent checkouts from different users over the same scarce product:
// stock never goes negative and losers fail cleanly.
func TestCheckoutService_Checkout_ConcurrentContention(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	ctx := context.Background()

	// prod-2 stock is 3; five buyers want 1 each.
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		f.seedCart(t, u, domain.CartLine{ProductID: "prod-2", Quantity: 1})
	}

	var wg sync.WaitGroup
	results := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, userID, CheckoutInput{})
			results <- err
		}(u)
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, insufficient)

	stock, _ := f.catalog.Available(ctx, "prod-2")
	assert.Zero(t, stock)
}

func TestCheckoutService_Checkout_MissingUserID(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	_, err := f.svc.Checkout(context.Background(), "", CheckoutInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
