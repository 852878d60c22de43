package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Manager backed by Redis SET NX PX, for deployments with more
// than one replica.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Manager = (*Redis)(nil)

// NewRedis creates a Redis lease manager. Keys are "<prefix>:lease:<name>";
// an empty prefix defaults to "storefeed".
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "storefeed"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(name string) string {
	return fmt.Sprintf("%s:lease:%s", r.prefix, name)
}

// Acquire implements Manager.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	key := r.key(name)

	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease: acquire %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{rdb: r.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (rl *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, rl.rdb, []string{rl.key}, rl.token).Err(); err != nil {
		return fmt.Errorf("lease: release %s: %w", rl.key, err)
	}
	return nil
}
