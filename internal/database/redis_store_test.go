package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// Runs against a real server only when REDIS_ADDR is set.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store := NewRedisStore(addr, "test:"+uuid.NewString())
	t.Cleanup(func() {
		ctx := context.Background()
		for _, k := range []string{productsKey, categoriesKey, cartKey, cartOrderKey} {
			store.client.Del(ctx, store.key(k))
		}
		store.Close()
	})
	return store
}

func TestRedisStoreSeedAndCart(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	_, path := newSeededDB(t)
	require.NoError(t, store.Initialize(ctx, path))

	products, err := store.ListProducts(ctx, models.ProductFilter{Search: "lamp"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 1, products[0].ID)

	_, err = store.GetProductByID(ctx, 99)
	assert.ErrorIs(t, err, os.ErrNotExist)

	first := &models.CartLine{ID: "a", ProductID: 1, Price: decimal.NewFromInt(2), Quantity: 1}
	second := &models.CartLine{ID: "b", ProductID: 2, Price: decimal.NewFromInt(3), Quantity: 2}
	require.NoError(t, store.CreateCartLine(ctx, first))
	require.NoError(t, store.CreateCartLine(ctx, second))
	assert.ErrorIs(t, store.CreateCartLine(ctx, first), ErrDuplicateID)

	second.Quantity = 5
	require.NoError(t, store.ReplaceCartLine(ctx, second))

	lines, err := store.ListCartLines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ID)
	assert.Equal(t, 5, lines[1].Quantity)

	require.NoError(t, store.DeleteCartLine(ctx, "a"))
	assert.ErrorIs(t, store.DeleteCartLine(ctx, "a"), os.ErrNotExist)
	assert.ErrorIs(t, store.ReplaceCartLine(ctx, first), os.ErrNotExist)
}

func TestRedisStoreConcurrentReplaceAndDelete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		id := uuid.NewString()
		line := &models.CartLine{ID: id, ProductID: 1, Price: decimal.NewFromInt(2), Quantity: 1}
		require.NoError(t, store.CreateCartLine(ctx, line))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			replaced := line.WithQuantity(2)
			err := store.ReplaceCartLine(ctx, &replaced)
			if err != nil {
				assert.ErrorIs(t, err, os.ErrNotExist)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, store.DeleteCartLine(ctx, id))
		}()
		wg.Wait()

		_, err := store.GetCartLine(ctx, id)
		assert.ErrorIs(t, err, os.ErrNotExist, "line %s survived its delete", id)
		ordered, err := store.client.ZScore(ctx, store.key(cartOrderKey), id).Result()
		assert.ErrorIs(t, err, redis.Nil, "order entry %v left behind", ordered)
	}

	lines, err := store.ListCartLines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
