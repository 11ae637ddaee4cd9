package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld means another worker is syncing the account.
var ErrLockHeld = errors.New("lock is held by another owner")

// Locker hands out per-key locks with SET NX PX.
type Locker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLocker(rdb *redis.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, prefix: prefix, ttl: ttl}
}

type Lock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{rdb: l.rdb, key: l.prefix + key, token: token, ttl: l.ttl}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`)

// Release deletes the lock only if this holder still owns it. It reports
// whether anything was deleted.
func (lk *Lock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	return n == 1, nil
}

// Refresh extends the TTL. ErrLockHeld means the lock expired and was taken.
func (lk *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token, lk.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}
