package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amelbenhazem/SmartShopTn/internal/domain"
	apperrors "github.com/amelbenhazem/SmartShopTn/pkg/errors"
)

func setupTestRedis(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := NewCartRepository(client, 24*time.Hour)
	return repo, mr
}

func sampleCart() *domain.Cart {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Cart{
		ID:     "cart-001",
		UserID: "user-001",
		Lines: []domain.CartLine{
			{ProductID: "prod-1", Quantity: 2},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestCartRepository_Get_Success(t *testing.T) {
	repo, mr := setupTestRedis(t)

	cart := sampleCart()
	data, err := json.Marshal(cart)
	require.NoError(t, err)

	// Set data directly in miniredis.
	require.NoError(t, mr.Set("cart:"+cart.UserID, string(data)))

	got, err := repo.Get(context.Background(), cart.UserID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, got.ID)
	assert.Equal(t, cart.UserID, got.UserID)
	assert.Equal(t, cart.Version, got.Version)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "prod-1", got.Lines[0].ProductID)
	assert.Equal(t, 2, got.Lines[0].Quantity)
}

func TestCartRepository_Get_NotFound(t *testing.T) {
	repo, _ := setupTestRedis(t)

	got, err := repo.Get(context.Background(), "nonexistent-user")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCartRepository_Get_InvalidJSON(t *testing.T) {
	repo, mr := setupTestRedis(t)

	require.NoError(t, mr.Set("cart:user-001", "{not-json"))

	got, err := repo.Get(context.Background(), "user-001")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal cart")
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestCartRepository_Save_RoundTrip(t *testing.T) {
	repo, mr := setupTestRedis(t)

	cart := sampleCart()
	require.NoError(t, repo.Save(context.Background(), cart))

	assert.True(t, mr.Exists("cart:"+cart.UserID))

	got, err := repo.Get(context.Background(), cart.UserID)
	require.NoError(t, err)
	assert.Equal(t, cart.Lines, got.Lines)
}

func TestCartRepository_Save_SetsTTL(t *testing.T) {
	repo, mr := setupTestRedis(t)

	cart := sampleCart()
	require.NoError(t, repo.Save(context.Background(), cart))

	ttl := mr.TTL("cart:" + cart.UserID)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

// ---------------------------------------------------------------------------
// SaveIfVersion
// ---------------------------------------------------------------------------

func TestCartRepository_SaveIfVersion_Success(t *testing.T) {
	repo, _ := setupTestRedis(t)

	cart := sampleCart()
	require.NoError(t, repo.Save(context.Background(), cart))

	// SaveIfVersion with correct expected version.
	updated := sampleCart()
	updated.Version = 2
	updated.Lines = append(updated.Lines, domain.CartLine{ProductID: "prod-2", Quantity: 1})

	ok, err := repo.SaveIfVersion(context.Background(), updated, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(context.Background(), cart.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, got.Lines, 2)
}

func TestCartRepository_SaveIfVersion_VersionMismatch(t *testing.T) {
	repo, _ := setupTestRedis(t)

	cart := sampleCart()
	require.NoError(t, repo.Save(context.Background(), cart))

	// Attempt SaveIfVersion with wrong expected version.
	stale := sampleCart()
	stale.Version = 100
	ok, err := repo.SaveIfVersion(context.Background(), stale, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(context.Background(), cart.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestCartRepository_SaveIfVersion_NewCart(t *testing.T) {
	repo, _ := setupTestRedis(t)

	cart := sampleCart()

	// SaveIfVersion with expectedVersion=0 when key doesn't exist should succeed.
	ok, err := repo.SaveIfVersion(context.Background(), cart, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(context.Background(), cart.UserID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, got.ID)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestCartRepository_Delete(t *testing.T) {
	repo, mr := setupTestRedis(t)

	cart := sampleCart()
	require.NoError(t, repo.Save(context.Background(), cart))
	require.True(t, mr.Exists("cart:"+cart.UserID))

	require.NoError(t, repo.Delete(context.Background(), cart.UserID))
	assert.False(t, mr.Exists("cart:"+cart.UserID))
}

func TestCartRepository_Delete_MissingKey(t *testing.T) {
	repo, _ := setupTestRedis(t)

	// Deleting an absent cart is not an error.
	assert.NoError(t, repo.Delete(context.Background(), "nobody"))
}
