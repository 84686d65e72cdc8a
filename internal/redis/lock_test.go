package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeLockStore is an in-memory LockStoreInterface.
type fakeLockStore struct {
	mu       sync.Mutex
	holders  map[string]string
	next     int
	released []string
	err      error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{holders: make(map[string]string)}
}

func (f *fakeLockStore) AcquireChargeLock(ctx context.Context, chargeID string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if _, held := f.holders[chargeID]; held {
		return "", false, nil
	}
	f.next++
	token := string(rune('a' + f.next))
	f.holders[chargeID] = token
	return token, true, nil
}

func (f *fakeLockStore) ReleaseChargeLock(ctx context.Context, chargeID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[chargeID] == token {
		delete(f.holders, chargeID)
	}
	f.released = append(f.released, token)
	return nil
}

func TestChargeLocker_AcquireAndRelease(t *testing.T) {
	store := newFakeLockStore()
	locker := NewChargeLocker(store, time.Minute, 100*time.Millisecond)

	release, err := locker.Lock(context.Background(), "charge-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	if len(store.holders) != 0 {
		t.Error("expected lock to be released")
	}
}

func TestChargeLocker_WaitsForHolder(t *testing.T) {
	store := newFakeLockStore()
	locker := NewChargeLocker(store, time.Minute, time.Second)

	release, _ := locker.Lock(context.Background(), "charge-1")
	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	second, err := locker.Lock(context.Background(), "charge-1")
	if err != nil {
		t.Fatalf("expected to acquire after holder released, got %v", err)
	}
	second()
}

func TestChargeLocker_GivesUpAfterWait(t *testing.T) {
	store := newFakeLockStore()
	locker := NewChargeLocker(store, time.Minute, 60*time.Millisecond)

	release, _ := locker.Lock(context.Background(), "charge-1")
	defer release()

	if _, err := locker.Lock(context.Background(), "charge-1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestChargeLocker_HonoursContext(t *testing.T) {
	store := newFakeLockStore()
	locker := NewChargeLocker(store, time.Minute, time.Minute)

	release, _ := locker.Lock(context.Background(), "charge-1")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := locker.Lock(ctx, "charge-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestChargeLocker_ReleaseSurvivesCancelledCaller(t *testing.T) {
	store := newFakeLockStore()
	locker := NewChargeLocker(store, time.Minute, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	release, err := locker.Lock(ctx, "charge-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	release()

	if len(store.holders) != 0 {
		t.Error("expected release to run after caller cancellation")
	}
}

func TestChargeLocker_StoreErrorPropagates(t *testing.T) {
	store := newFakeLockStore()
	store.err = errors.New("connection refused")
	locker := NewChargeLocker(store, time.Minute, time.Second)

	if _, err := locker.Lock(context.Background(), "charge-1"); !errors.Is(err, store.err) {
		t.Fatalf("expected store error, got %v", err)
	}
}
