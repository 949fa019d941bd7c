package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketing-core/config"
	"ticketing-core/internal/status"
	"ticketing-core/monitoring"
	"ticketing-core/utils"
)

// Locker is the cluster-wide mutual exclusion primitive. Every mutating
// engine operation acquires a key scoped to the entity it touches; workers
// acquire a job-scoped key so only one instance runs per interval.
type Locker interface {
	// Acquire returns a fencing token on success, or a Busy error after
	// bounded retries. The lock self-expires after its TTL.
	Acquire(ctx context.Context, key string) (string, error)
	// Release is a no-op unless token matches the current holder's.
	Release(ctx context.Context, key, token string) error
}

// Lock key prefixes. Entity locks embed the entity id; job locks are global.
const (
	lockPrefix          = "lock:"
	LockKeyTicketType   = "ticket-type:"
	LockKeyTicket       = "ticket:"
	LockKeyExpiryJob    = "job:reservation-expiry"
	LockKeyReconcileJob = "job:inventory-reconcile"
	LockKeyRelayJob     = "job:outbox-relay"
)

// release only deletes the key while the caller still holds it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type RedisLock struct {
	redis   *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

func NewRedisLock(client *redis.Client, cfg *config.Config) *RedisLock {
	return &RedisLock{
		redis:   client,
		ttl:     cfg.LockTTL,
		retries: cfg.LockRetries,
		backoff: cfg.LockBackoff,
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string) (string, error) {
	token, err := utils.GenerateCode(16)
	if err != nil {
		return "", status.Infrastructure("generate lock token", err)
	}

	started := time.Now()
	backoff := l.backoff
	for attempt := 0; ; attempt++ {
		ok, err := l.redis.SetNX(ctx, lockPrefix+key, token, l.ttl).Result()
		if err != nil {
			monitoring.TrackLockAcquire("error", time.Since(started))
			return "", status.Infrastructure("lock store unreachable", err)
		}
		if ok {
			monitoring.TrackLockAcquire("acquired", time.Since(started))
			return token, nil
		}
		if attempt >= l.retries {
			break
		}
		select {
		case <-ctx.Done():
			monitoring.TrackLockAcquire("cancelled", time.Since(started))
			return "", status.Infrastructure("lock wait cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	monitoring.TrackLockAcquire("busy", time.Since(started))
	return "", status.Busy("lock held: " + key)
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	err := l.redis.Eval(ctx, releaseScript, []string{lockPrefix + key}, token).Err()
	if err != nil && err != redis.Nil {
		return status.Infrastructure("release lock "+key, err)
	}
	return nil
}

// withLock runs fn while holding key. Release happens on every exit path;
// a panic inside fn still releases before propagating.
func withLock(ctx context.Context, locker Locker, key string, fn func() error) error {
	token, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer locker.Release(ctx, key, token)
	return fn()
}
