package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfOwner releases only while the key still holds the caller's token.
// ARGV[1]=token, ARGV[2]='1' rewrites the key to the done marker for ARGV[3] ms, else deletes it.
const luaReleaseIfOwner = `
local key = KEYS[1]
if redis.call('GET', key) ~= ARGV[1] then
  return 0
end
if ARGV[2] == '1' then
  redis.call('SET', key, 'done', 'PX', tonumber(ARGV[3]))
else
  redis.call('DEL', key)
end
return 1
`

// RedisLocker is a Locker backed by SET NX PX with a compare-and-release script.
type RedisLocker struct {
	rdb     *rd.Client
	prefix  string
	lease   time.Duration
	doneTTL time.Duration
}

// NewRedisLocker returns a locker that namespaces keys under prefix.
func NewRedisLocker(rdb *rd.Client, prefix string, lease, doneTTL time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, lease: lease, doneTTL: doneTTL}
}

func (l *RedisLocker) key(orderNumber string) string {
	return fmt.Sprintf("%s:order:%s", l.prefix, orderNumber)
}

// Acquire takes the lock for orderNumber unless it is held or already done.
func (l *RedisLocker) Acquire(ctx context.Context, orderNumber string) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(orderNumber), token, l.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{Key: orderNumber, Token: token}, true, nil
}

// Release frees the lock, or pins it as done so later deliveries short-circuit.
func (l *RedisLocker) Release(ctx context.Context, lease *Lease, done bool, _ string) error {
	flag := "0"
	if done {
		flag = "1"
	}
	n, err := l.rdb.Eval(ctx, luaReleaseIfOwner, []string{l.key(lease.Key)}, lease.Token, flag, l.doneTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}
