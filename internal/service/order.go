package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/event"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// RoleAdmin grants access to any order and to status updates.
const RoleAdmin = "admin"

// OrderService implements the business logic for order retrieval and the
// admin status workflow.
type OrderService struct {
	repo     repository.OrderRepository
	stock    repository.StockStore
	producer *event.Producer
	logger   *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	repo repository.OrderRepository,
	stock repository.StockStore,
	producer *event.Producer,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		repo:     repo,
		stock:    stock,
		producer: producer,
		logger:   logger,
	}
}

// GetOrder retrieves an order. Non-admin callers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, orderID, requesterID, requesterRole string) (*domain.Order, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	if requesterID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != requesterID && requesterRole != RoleAdmin {
		return nil, apperrors.Forbidden("not allowed to view this order")
	}

	return order, nil
}

// ListMyOrders returns the requester's orders, most recent first.
func (s *OrderService) ListMyOrders(ctx context.Context, userID string, page, perPage int) ([]domain.Order, int, error) {
	if userID == "" {
		return nil, 0, apperrors.Unauthorized("authentication required")
	}

	orders, total, err := s.repo.ListByUser(ctx, repository.OrderFilter{
		UserID:  userID,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// UpdateStatus transitions an order to a new status, enforcing the allowed
// transition graph. Cancelling an order returns its stock.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus string) (*domain.Order, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	if !domain.IsValidStatus(newStatus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid order status %q", newStatus))
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanTransitionTo(newStatus) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot transition order from %s to %s", order.Status, newStatus))
	}

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		return nil, err
	}

	oldStatus := order.Status
	order.Status = newStatus

	if newStatus == domain.OrderStatusCancelled {
		s.restoreStock(ctx, order)
	}

	if err := s.producer.PublishOrderStatusChanged(ctx, order, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)

	return order, nil
}

// restoreStock returns a cancelled order's quantities to stock, best effort
// per item.
func (s *OrderService) restoreStock(ctx context.Context, order *domain.Order) {
	for _, item := range order.Items {
		if err := s.stock.Increment(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.ErrorContext(ctx, "failed to restore stock for cancelled order",
				slog.String("order_id", order.ID),
				slog.String("product_id", item.ProductID),
				slog.Int("quantity", item.Quantity),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := s.producer.PublishStockReleased(ctx, item.ProductID, item.Quantity, "order_cancelled"); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish stock.released event",
				slog.String("product_id", item.ProductID),
				slog.String("error", err.Error()),
			)
		}
	}
}
