package keylock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"golden/internal/request/models"
	dErrors "golden/pkg/domain-errors"
	"golden/pkg/platform/sentinel"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultRetryWait = 25 * time.Millisecond
	keyPrefix        = "golden:dupkey:"
)

// releaseScript deletes the lock only while it still carries our token, so a
// holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a KeyLocker shared by every replica pointing at the same
// Redis. Locks expire after ttl so a crashed holder cannot wedge a key.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	logger    *slog.Logger
}

type RedisOption func(*RedisLocker)

func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryWait = d
		}
	}
}

func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLocker) {
		l.logger = logger
	}
}

func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		ttl:       defaultLockTTL,
		retryWait: defaultRetryWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls SET NX PX until it wins or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key models.DuplicateKey) (func(), error) {
	redisKey := keyPrefix + key.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryWait)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "waiting for duplicate key lock")
			}
			return nil, fmt.Errorf("acquire key lock: %w: %w", sentinel.ErrUnavailable, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrLockHeld, ctx.Err()), dErrors.CodeTimeout, "waiting for duplicate key lock")
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	// The caller's context may already be done; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && l.logger != nil {
		l.logger.Warn("failed to release duplicate key lock",
			"key", redisKey,
			"error", err,
		)
	}
}
