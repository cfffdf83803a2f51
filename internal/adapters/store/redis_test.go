package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/domain"
)

func testClient(t *testing.T) *RedisDirectory {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rdb, err := Connect(ctx, addr)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	d := NewRedisDirectory(rdb, "sfu-test-"+uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = d.Reset(context.Background())
		_ = rdb.Close()
	})
	return d
}

func TestNewRedisDirectoryKey(t *testing.T) {
	require.Equal(t, "sfu:producers", NewRedisDirectory(nil, "").Key())
	require.Equal(t, "room1:producers", NewRedisDirectory(nil, " room1: ").Key())
}

func TestRedisDirectory(t *testing.T) {
	d := testClient(t)
	ctx := context.Background()

	require.NoError(t, d.Add(ctx, "b"))
	require.NoError(t, d.Add(ctx, "a"))
	require.NoError(t, d.Add(ctx, "a"))

	ids, err := d.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.ParticipantID{"a", "b"}, ids)

	require.NoError(t, d.Remove(ctx, "a"))
	ids, err = d.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.ParticipantID{"b"}, ids)

	require.NoError(t, d.Reset(ctx))
	ids, err = d.List(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}
