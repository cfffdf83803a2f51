package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/domain"
)

// RedisDirectory keeps the participants with a live producer in a redis set.
type RedisDirectory struct {
	rdb *redis.Client
	key string
}

// NewRedisDirectory builds a directory on rdb. The set lives at
// "<prefix>:producers"; an empty prefix means "sfu".
func NewRedisDirectory(rdb *redis.Client, prefix string) *RedisDirectory {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "sfu"
	}
	return &RedisDirectory{
		rdb: rdb,
		key: fmt.Sprintf("%s:producers", p),
	}
}

// Connect dials addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info().Str("module", "store.redis").Str("addr", addr).Msg("redis connected")
	return rdb, nil
}

func (d *RedisDirectory) Key() string { return d.key }

func (d *RedisDirectory) Reset(ctx context.Context) error {
	return d.rdb.Del(ctx, d.key).Err()
}

func (d *RedisDirectory) Add(ctx context.Context, id domain.ParticipantID) error {
	return d.rdb.SAdd(ctx, d.key, string(id)).Err()
}

func (d *RedisDirectory) Remove(ctx context.Context, id domain.ParticipantID) error {
	return d.rdb.SRem(ctx, d.key, string(id)).Err()
}

// List returns the stored ids sorted, since redis sets are unordered.
func (d *RedisDirectory) List(ctx context.Context) ([]domain.ParticipantID, error) {
	vals, err := d.rdb.SMembers(ctx, d.key).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(vals)
	out := make([]domain.ParticipantID, 0, len(vals))
	for _, v := range vals {
		out = append(out, domain.ParticipantID(v))
	}
	return out, nil
}
