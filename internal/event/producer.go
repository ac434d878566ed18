package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	pkgkafka "github.com/amelbenhazem/SmartShopTn/pkg/kafka"
)

// Kafka topic constants for storefront domain events.
const (
	TopicCartUpdated        = "smartshop.cart.updated"
	TopicCartCleared        = "smartshop.cart.cleared"
	TopicOrderCreated       = "smartshop.order.created"
	TopicOrderStatusChanged = "smartshop.order.status_changed"
	TopicStockReleased      = "smartshop.stock.released"
)

// Aggregate type constants.
const (
	AggregateTypeCart  = "cart"
	AggregateTypeOrder = "order"
	AggregateTypeStock = "stock"
)

// Source identifier for events originating from the storefront service.
const SourceStorefront = "storefront"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID    string         `json:"user_id"`
	Lines     []CartLineData `json:"lines"`
	LineCount int            `json:"line_count"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	UserID string `json:"user_id"`
}

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
	ItemCount int    `json:"item_count"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// StockReleasedData is the payload for a stock.released event, emitted when
// a checkout compensation or lease expiry returns stock.
type StockReleasedData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the storefront service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	lines := make([]CartLineData, len(cart.Lines))
	for i, line := range cart.Lines {
		lines[i] = CartLineData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
	}

	data := CartUpdatedData{
		UserID:    cart.UserID,
		Lines:     lines,
		LineCount: len(lines),
	}

	event, err := pkgkafka.NewEvent(TopicCartUpdated, cart.UserID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("user_id", cart.UserID),
		slog.Int("line_count", len(lines)),
	)

	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, userID string) error {
	event, err := pkgkafka.NewEvent(TopicCartCleared, userID, AggregateTypeCart, SourceStorefront, CartClearedData{UserID: userID})
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	return nil
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	data := OrderCreatedData{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    order.Status,
		Total:     order.Total,
		Currency:  order.Currency,
		ItemCount: len(order.Items),
	}

	event, err := pkgkafka.NewEvent(TopicOrderCreated, order.ID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, event); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)

	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus string) error {
	data := OrderStatusChangedData{
		OrderID:   order.ID,
		UserID:    order.UserID,
		OldStatus: oldStatus,
		NewStatus: order.Status,
	}

	event, err := pkgkafka.NewEvent(TopicOrderStatusChanged, order.ID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.status_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderStatusChanged, event); err != nil {
		return fmt.Errorf("publish order.status_changed event: %w", err)
	}

	return nil
}

// PublishStockReleased publishes a stock.released event.
func (p *Producer) PublishStockReleased(ctx context.Context, productID string, quantity int, reason string) error {
	data := StockReleasedData{
		ProductID: productID,
		Quantity:  quantity,
		Reason:    reason,
	}

	event, err := pkgkafka.NewEvent(TopicStockReleased, productID, AggregateTypeStock, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create stock.released event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicStockReleased, event); err != nil {
		return fmt.Errorf("publish stock.released event: %w", err)
	}

	return nil
}
