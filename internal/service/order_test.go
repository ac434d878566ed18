package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	"github.com/amelbenhazem/SmartShopTn/internal/repository/memory"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

func newTestOrderService(repo repository.OrderRepository, catalog *memory.Catalog) *OrderService {
	if catalog == nil {
		catalog = memory.NewCatalog(testProducts()...)
	}
	return NewOrderService(repo, catalog, newTestProducer(), newTestLogger())
}

func storedOrder(t *testing.T, repo repository.OrderRepository, status string) *domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &domain.Order{
		ID:              "order-001",
		UserID:          "user-1",
		Status:          status,
		Total:           5000,
		Currency:        domain.Currency,
		ShippingAddress: DefaultShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items: []domain.OrderItem{
			{ID: "item-1", OrderID: "order-001", ProductID: "prod-1", Name: "Dattes Deglet Nour 500g", Price: 2500, Quantity: 2, Subtotal: 5000},
		},
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

// --- GetOrder ---

func TestOrderService_GetOrder_Owner(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)
	storedOrder(t, repo, domain.OrderStatusPending)

	got, err := svc.GetOrder(context.Background(), "order-001", "user-1", "customer")
	require.NoError(t, err)
	assert.Equal(t, "order-001", got.ID)
}

func TestOrderService_GetOrder_AdminSeesAny(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)
	storedOrder(t, repo, domain.OrderStatusPending)

	got, err := svc.GetOrder(context.Background(), "order-001", "staff-9", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "order-001", got.ID)
}

func TestOrderService_GetOrder_StrangerForbidden(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)
	storedOrder(t, repo, domain.OrderStatusPending)

	_, err := svc.GetOrder(context.Background(), "order-001", "user-2", "customer")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)

	_, err := svc.GetOrder(context.Background(), "ghost", "user-1", "customer")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderService_GetOrder_Unauthenticated(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)

	_, err := svc.GetOrder(context.Background(), "order-001", "", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- ListMyOrders ---

func TestOrderService_ListMyOrders_MostRecentFirst(t *testing.T) {
	repo := &mockOrderRepository{}
	svc := newTestOrderService(repo, nil)

	repo.On("ListByUser", mock.Anything, repository.OrderFilter{UserID: "user-1", Page: 1, PerPage: 20}).
		Return([]domain.Order{{ID: "order-2"}, {ID: "order-1"}}, 2, nil)

	orders, total, err := svc.ListMyOrders(context.Background(), "user-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "order-2", orders[0].ID)

	repo.AssertExpectations(t)
}

func TestOrderService_ListMyOrders_Unauthenticated(t *testing.T) {
	svc := newTestOrderService(newMemOrderRepository(), nil)

	_, _, err := svc.ListMyOrders(context.Background(), "", 1, 20)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- UpdateStatus ---

func TestOrderService_UpdateStatus_PendingToConfirmed(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)
	storedOrder(t, repo, domain.OrderStatusPending)

	got, err := svc.UpdateStatus(context.Background(), "order-001", domain.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)

	stored, err := repo.GetByID(context.Background(), "order-001")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
}

func TestOrderService_UpdateStatus_InvalidTransition(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)
	storedOrder(t, repo, domain.OrderStatusDelivered)

	_, err := svc.UpdateStatus(context.Background(), "order-001", domain.OrderStatusPending)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestOrderService_UpdateStatus_InvalidStatus(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)

	_, err := svc.UpdateStatus(context.Background(), "order-001", "teleported")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOrderService_UpdateStatus_CancelRestoresStock(t *testing.T) {
	repo := newMemOrderRepository()
	catalog := memory.NewCatalog(testProducts()...)
	svc := newTestOrderService(repo, catalog)
	storedOrder(t, repo, domain.OrderStatusPending)

	ctx := context.Background()

	// Simulate the stock having been taken at checkout.
	ok, err := catalog.TryDecrement(ctx, "prod-1", 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.UpdateStatus(ctx, "order-001", domain.OrderStatusCancelled)
	require.NoError(t, err)

	stock, err := catalog.Available(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock)
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	repo := newMemOrderRepository()
	svc := newTestOrderService(repo, nil)

	_, err := svc.UpdateStatus(context.Background(), "ghost", domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
