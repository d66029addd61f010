package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, PendingRefKey(1), "abc", time.Hour))

	v, err := s.Get(ctx, PendingRefKey(1))
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, PendingRefKey(1))
	require.ErrorIs(t, err, ErrNoValue)
}

func TestMemoryStore_Take(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, err := s.Take(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	_, err = s.Take(ctx, "k")
	require.ErrorIs(t, err, ErrNoValue)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, AwaitWalletKey(5), "1", time.Minute))
	require.NoError(t, s.Delete(ctx, AwaitWalletKey(5)))
	_, err := s.Get(ctx, AwaitWalletKey(5))
	require.ErrorIs(t, err, ErrNoValue)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "xepbot:pending_ref:42", PendingRefKey(42))
	require.NotEqual(t, PendingRefKey(42), AwaitWalletKey(42))
}

// интеграционный тест, нужен живой redis
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	s := NewRedisStore(rdb)
	key := PendingRefKey(time.Now().UnixNano())

	require.NoError(t, s.Set(ctx, key, "code1", time.Minute))
	v, err := s.Take(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "code1", v)

	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, ErrNoValue)
}
