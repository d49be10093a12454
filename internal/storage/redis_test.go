package storage

import (
	"context"
	"testing"
	"time"

	"artjournal-backend/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStorage) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s := NewRedisStorage(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", ttl)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestRedisStorage(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		_, s := newTestRedis(t, 0)
		return s
	})
}

func TestRedisStorageKeys(t *testing.T) {
	mr, s := newTestRedis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.AddMessage(ctx, &model.Message{ID: "7", ChatID: "g1", UserID: "bot", Timestamp: time.Now()}))
	require.NoError(t, s.AddMessage(ctx, &model.Message{ID: "8", ChatID: "g1", UserID: "bot", Timestamp: time.Now()}))

	assert.True(t, mr.Exists("test:chat:g1:messages"))
	assert.True(t, mr.Exists("test:chat:g1:timeline"))
	seq, err := mr.Get("test:chat:g1:seq")
	require.NoError(t, err)
	assert.Equal(t, "2", seq)
	assert.Equal(t, time.Hour, mr.TTL("test:chat:g1:messages"))
}

func TestRedisStorageExpiry(t *testing.T) {
	mr, s := newTestRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.AddMessage(ctx, &model.Message{ID: "7", ChatID: "g1", UserID: "bot", Timestamp: time.Now()}))
	mr.FastForward(2 * time.Minute)

	_, err := s.ListMessages(ctx, "g1")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestRedisStorageInitFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	s := NewRedisStorage(redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}), "test:", 0)
	defer s.Close()
	assert.ErrorIs(t, s.Init(), ErrStorageInit)
}
