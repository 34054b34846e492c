package lock

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisProvider implements locking with SET NX PX. The key's TTL is the
// maximum hold; release before the minimum hold shortens the TTL instead of
// deleting the key so the minimum hold still applies.
type RedisProvider struct {
	client *redis.Client
	owner  string
}

const redisKeyPrefix = "streamwatch_lock:"

func NewRedisProvider(client *redis.Client) *RedisProvider {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return &RedisProvider{client: client, owner: host + "/" + uuid.NewString()}
}

func (p *RedisProvider) TryAcquire(ctx context.Context, name string, maxHold, minHold time.Duration) (Lease, error) {
	ok, err := p.client.SetNX(ctx, redisKeyPrefix+name, p.owner, maxHold).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return nil, nil
	}
	return &redisLease{provider: p, name: name, lockedAt: time.Now(), minHold: minHold}, nil
}

type redisLease struct {
	provider *RedisProvider
	name     string
	lockedAt time.Time
	minHold  time.Duration
}

// releaseScript deletes the key only while we still own it; if the minimum
// hold has not elapsed the TTL is trimmed to the remainder instead.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
local remain = tonumber(ARGV[2])
if remain > 0 then
  return redis.call("PEXPIRE", KEYS[1], remain)
end
return redis.call("DEL", KEYS[1])
`)

func (l *redisLease) Release(ctx context.Context) error {
	remain := l.minHold - time.Since(l.lockedAt)
	if remain < 0 {
		remain = 0
	}
	err := releaseScript.Run(ctx, l.provider.client,
		[]string{redisKeyPrefix + l.name}, l.provider.owner, remain.Milliseconds()).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return errors.Wrap(err, "redis release")
}
