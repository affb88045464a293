package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nh-chitose/r2-re/internal/domain"
)

func testPair(size float64) domain.OrderPair {
	buy := domain.NewOrder(domain.OrderInit{
		Symbol: "BTC/JPY", Broker: "alpha", Side: domain.OrderSideBuy,
		Size: size, Price: 100, Type: domain.OrderTypeLimit,
	})
	sell := domain.NewOrder(domain.OrderInit{
		Symbol: "BTC/JPY", Broker: "beta", Side: domain.OrderSideSell,
		Size: size, Price: 101, Type: domain.OrderTypeLimit,
	})
	return domain.OrderPair{buy, sell}
}

func TestPairStorePutAndGet(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	pair := testPair(0.01)
	key, err := store.Put(ctx, pair)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, pair[0].ID, got[0].ID)
}

func TestPairStorePutRejectsInvalidPair(t *testing.T) {
	store := NewPairStore()

	pair := testPair(0.01)
	pair[1].Size = 0.02
	_, err := store.Put(context.Background(), pair)
	assert.Error(t, err)
}

func TestPairStoreGetAllPreservesInsertionOrder(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	first, err := store.Put(ctx, testPair(0.01))
	require.NoError(t, err)
	second, err := store.Put(ctx, testPair(0.02))
	require.NoError(t, err)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].Key)
	assert.Equal(t, second, all[1].Key)
}

func TestPairStoreDel(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	key, err := store.Put(ctx, testPair(0.01))
	require.NoError(t, err)

	assert.NoError(t, store.Del(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Del(ctx, key), domain.ErrNotFound)
}

func TestPairStoreDelAll(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	_, err := store.Put(ctx, testPair(0.01))
	require.NoError(t, err)
	_, err = store.Put(ctx, testPair(0.02))
	require.NoError(t, err)

	assert.NoError(t, store.DelAll(ctx))
	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPairStoreOnChange(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	var calls int
	store.OnChange(func() { calls++ })

	key, err := store.Put(ctx, testPair(0.01))
	require.NoError(t, err)
	require.NoError(t, store.Del(ctx, key))
	assert.Equal(t, 2, calls)
}
