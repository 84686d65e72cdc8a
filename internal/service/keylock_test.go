package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Lock(context.Background(), "charge-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			defer release()

			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("expected at most one holder, saw %d", peak.Load())
	}
	if len(m.locks) != 0 {
		t.Errorf("expected lock table to be empty, has %d entries", len(m.locks))
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()

	release, err := m.Lock(context.Background(), "charge-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	other, err := m.Lock(ctx, "charge-2")
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	other()
}

func TestKeyedMutex_WaitHonoursContext(t *testing.T) {
	m := NewKeyedMutex()

	release, _ := m.Lock(context.Background(), "charge-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Lock(ctx, "charge-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	release()
	release() // second call is a no-op

	again, err := m.Lock(context.Background(), "charge-1")
	if err != nil {
		t.Fatalf("expected lock to be free, got %v", err)
	}
	again()
}
