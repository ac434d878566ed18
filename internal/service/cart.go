package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	"github.com/amelbenhazem/SmartShopTn/internal/event"
	"github.com/amelbenhazem/SmartShopTn/internal/repository"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerLine is the maximum quantity allowed for a single cart line.
	MaxQuantityPerLine = 100
	// MaxLinesPerCart is the maximum number of distinct products allowed in a cart.
	MaxLinesPerCart = 50
)

// AddItemInput holds the parameters for adding a product to the cart.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateQuantityInput holds the parameters for updating a line quantity.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// CartView is a cart with prices resolved from the catalog at read time, so
// a price change between visits is reflected without rewriting stored carts.
type CartView struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Lines     []CartViewLine `json:"lines"`
	Total     int64          `json:"total"`
	Currency  string         `json:"currency"`
	Version   int            `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CartViewLine is a single priced line within a CartView.
type CartViewLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
	InStock   bool   `json:"in_stock"`
}

// CartService implements the business logic for cart operations.
type CartService struct {
	repo     repository.CartRepository
	catalog  repository.ProductReader
	producer *event.Producer
	logger   *slog.Logger
	cartTTL  time.Duration
}

// NewCartService creates a new cart service.
func NewCartService(
	repo repository.CartRepository,
	catalog repository.ProductReader,
	producer *event.Producer,
	logger *slog.Logger,
	cartTTL time.Duration,
) *CartService {
	return &CartService{
		repo:     repo,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
		cartTTL:  cartTTL,
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// Snapshot resolves the user's cart against the catalog: current prices,
// per-line subtotals, and the running total.
func (s *CartService) Snapshot(ctx context.Context, userID string) (*CartView, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Lines:     make([]CartViewLine, 0, len(cart.Lines)),
		Currency:  domain.Currency,
		Version:   cart.Version,
		UpdatedAt: cart.UpdatedAt,
	}

	for _, line := range cart.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// Product withdrawn from the catalog since it was added;
				// surface the line without pricing rather than failing the
				// whole snapshot.
				view.Lines = append(view.Lines, CartViewLine{
					ProductID: line.ProductID,
					Quantity:  line.Quantity,
				})
				continue
			}
			return nil, fmt.Errorf("resolve cart line %s: %w", line.ProductID, err)
		}

		subtotal := product.Price * int64(line.Quantity)
		view.Lines = append(view.Lines, CartViewLine{
			ProductID: line.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
			InStock:   product.Stock >= line.Quantity,
		})
		view.Total += subtotal
	}

	return view, nil
}

// AddItem adds a product to the user's cart, merging quantities when the
// product is already present. The stock check here is advisory: it rejects
// obviously doomed additions but the authoritative check happens at checkout.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity must be greater than 0, got %d", input.Quantity))
	}
	if input.Quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("product", input.ProductID)
		}
		return nil, fmt.Errorf("check product: %w", err)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	expectedVersion := cart.Version

	// Merge with an existing line, keeping insertion order.
	requested := input.Quantity
	if i := cart.FindLineIndex(input.ProductID); i >= 0 {
		requested = cart.Lines[i].Quantity + input.Quantity
		if requested > MaxQuantityPerLine {
			return nil, apperrors.InvalidQuantity(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerLine))
		}
		if requested > product.Stock {
			return nil, apperrors.InsufficientStock(input.ProductID, requested, product.Stock)
		}
		cart.Lines[i].Quantity = requested
	} else {
		if len(cart.Lines) >= MaxLinesPerCart {
			return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d lines", MaxLinesPerCart))
		}
		if requested > product.Stock {
			return nil, apperrors.InsufficientStock(input.ProductID, requested, product.Stock)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
		})
	}

	if err := s.saveCart(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
	)

	return cart, nil
}

// UpdateItemQuantity sets the quantity of a cart line. Removal goes through
// RemoveItem; a non-positive quantity here is rejected.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 {
		return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity must be positive, got %d", quantity))
	}
	if quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("cart item", productID)
		}
		return nil, fmt.Errorf("get cart for update: %w", err)
	}

	expectedVersion := cart.Version

	i := cart.FindLineIndex(productID)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", productID)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("check product: %w", err)
	}
	if quantity > product.Stock {
		return nil, apperrors.InsufficientStock(productID, quantity, product.Stock)
	}
	cart.Lines[i].Quantity = quantity

	if err := s.saveCart(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart line quantity updated",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes a product line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("cart item", productID)
		}
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}

	expectedVersion := cart.Version

	i := cart.FindLineIndex(productID)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", productID)
	}
	cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)

	if err := s.saveCart(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart line removed",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
	)

	return cart, nil
}

// ClearCart removes the user's entire cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	if err := s.producer.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

// saveCart bumps the cart's version and persists it with the optimistic
// check, then publishes cart.updated best effort.
func (s *CartService) saveCart(ctx context.Context, cart *domain.Cart, expectedVersion int) error {
	now := time.Now().UTC()
	cart.Version = expectedVersion + 1
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(s.cartTTL)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}

	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// getOrCreateCart loads the user's cart or starts a fresh one at version 0.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		Lines:     []domain.CartLine{},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}
