package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Lock is a best-effort single-runner guard built on SET NX. Batch jobs hold
// it for the duration of a run so an overlapping cron tick becomes a no-op.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock takes the named lock for ttl. It reports false without error
// when another runner holds it.
func AcquireLock(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration) (*Lock, bool, error) {
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("platform/cache: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: client, key: key, token: token}, true, nil
}

// Release frees the lock if this runner still owns it.
func (l *Lock) Release(ctx context.Context) error {
	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`
	if err := l.client.Eval(ctx, script, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("platform/cache: release lock %s: %w", l.key, err)
	}
	return nil
}
