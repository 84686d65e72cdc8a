package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a lock stays held by someone else
// for longer than the configured wait.
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func chargeLockKey(chargeID string) string {
	return fmt.Sprintf("lock:charge:%s", chargeID)
}

// AcquireChargeLock attempts to acquire the lock for the given charge.
// Returns the owner token and true if the lock was acquired.
func (s *LockStore) AcquireChargeLock(ctx context.Context, chargeID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, chargeLockKey(chargeID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}

	return token, ok, nil
}

// ReleaseChargeLock releases the lock for the given charge if token still owns it.
func (s *LockStore) ReleaseChargeLock(ctx context.Context, chargeID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{chargeLockKey(chargeID)}, token).Err()
}

// ChargeLocker turns LockStore into a blocking per-charge mutex.
type ChargeLocker struct {
	store LockStoreInterface
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewChargeLocker creates a ChargeLocker. ttl must outlive the longest
// operation (including every gateway timeout it may hit); wait bounds how
// long Lock polls for a held lock.
func NewChargeLocker(store LockStoreInterface, ttl, wait time.Duration) *ChargeLocker {
	return &ChargeLocker{
		store: store,
		ttl:   ttl,
		wait:  wait,
		poll:  50 * time.Millisecond,
	}
}

// Lock blocks until the charge lock is held, ctx is done, or the wait expires.
// The returned release func is safe to call once.
func (l *ChargeLocker) Lock(ctx context.Context, chargeID string) (func(), error) {
	deadline := time.Now().Add(l.wait)

	for {
		token, ok, err := l.store.AcquireChargeLock(ctx, chargeID, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release must run even if the caller's context is gone.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				_ = l.store.ReleaseChargeLock(releaseCtx, chargeID, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
