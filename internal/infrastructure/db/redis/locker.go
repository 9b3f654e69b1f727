package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultLockKey = "group-requests:lock"
	defaultLockTTL = 10 * time.Second
	retryInterval  = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a ports.Locker shared by every replica connected to the same
// Redis. A lease expires after ttl if its holder dies; it is never extended,
// so an operation outliving ttl is logged on release.
type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewLocker creates a Locker on key. Empty key and non-positive ttl fall back
// to defaults.
func NewLocker(client *redis.Client, key string, ttl time.Duration, log zerolog.Logger) *Locker {
	if key == "" {
		key = defaultLockKey
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, key: key, ttl: ttl, log: log}
}

// Lock polls SET NX PX until it wins the lease or ctx is done.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			acquired := time.Now()
			return func() { l.release(token, acquired) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(token string, acquired time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		l.log.Error().Err(err).Str("key", l.key).Msg("lock release failed")
		return
	}
	if n == 0 {
		l.log.Warn().
			Str("key", l.key).
			Dur("held", time.Since(acquired)).
			Dur("ttl", l.ttl).
			Msg("lock lease expired before release; exclusivity was lost")
	}
}

// Ping reports whether Redis is reachable.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
