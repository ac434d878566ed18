package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

const keyPrefix = "cart:"

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cart by user ID from Redis.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := keyPrefix + userID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", userID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// Save persists a cart to Redis with the configured TTL.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	key := keyPrefix + cart.UserID

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// SaveIfVersion persists the cart only if the stored version still equals
// expectedVersion, using a WATCH/MULTI optimistic transaction. A missing key
// counts as version 0, so a new cart is saved with expectedVersion=0.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	key := keyPrefix + cart.UserID

	data, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart: %w", err)
	}

	var mismatch bool
	txn := func(tx *redis.Tx) error {
		stored := 0
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// no cart yet; stored stays 0
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			var current domain.Cart
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("unmarshal cart: %w", err)
			}
			stored = current.Version
		}

		if stored != expectedVersion {
			mismatch = true
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txn, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// key changed between WATCH and EXEC; same outcome as a
			// version mismatch.
			return false, nil
		}
		return false, fmt.Errorf("redis save cart tx: %w", err)
	}

	return !mismatch, nil
}

// Delete removes a cart from Redis by user ID.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	key := keyPrefix + userID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}

	return nil
}
