package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) *MongoStore {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, mongoContainer)
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(context.Background()) })

	s := NewMongoStore(db, 24*time.Hour)
	require.NoError(t, s.CreateIndexes(ctx))
	return s
}

func TestMongoStore(t *testing.T) {
	s := setupTestMongo(t)
	ctx := context.Background()

	t.Run("load missing returns empty cart", func(t *testing.T) {
		cart, err := s.Load(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Equal(t, domain.NewCart("nonexistent"), cart)
	})

	t.Run("save then load", func(t *testing.T) {
		cart := domain.Cart{UserID: "u1", Items: []domain.CartItem{
			{BookID: "b1", Title: "Dune", Quantity: 2, Price: 9.99},
		}}
		require.NoError(t, s.Save(ctx, "u1", cart))

		loaded, err := s.Load(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, cart, loaded)
	})

	t.Run("save replaces whole document", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "u2", domain.Cart{UserID: "u2", Items: []domain.CartItem{
			{BookID: "b1", Quantity: 1},
			{BookID: "b2", Quantity: 1},
		}}))
		require.NoError(t, s.Save(ctx, "u2", domain.Cart{UserID: "u2", Items: []domain.CartItem{
			{BookID: "b2", Quantity: 3},
		}}))

		loaded, err := s.Load(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, loaded.Items, 1)
		assert.Equal(t, 3, loaded.Items[0].Quantity)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "u3", domain.Cart{UserID: "u3", Items: []domain.CartItem{{BookID: "b1", Quantity: 1}}}))

		require.NoError(t, s.Delete(ctx, "u3"))
		require.NoError(t, s.Delete(ctx, "u3"))

		loaded, err := s.Load(ctx, "u3")
		require.NoError(t, err)
		assert.True(t, loaded.IsEmpty())
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Load(cctx, "u1")
		assert.ErrorContains(t, err, "context")
	})
}

func TestExpireAfterSeconds_RoundsUp(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{time.Millisecond, 1},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{24 * time.Hour, 86400},
		{time.Duration(math.MaxInt64), math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, expireAfterSeconds(tt.ttl))
		})
	}
}
