package redis

import (
	"context"
	"time"

	"cobranca/internal/domain"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireChargeLock(ctx context.Context, chargeID string, ttl time.Duration) (string, bool, error)
	ReleaseChargeLock(ctx context.Context, chargeID, token string) error
}

// PixCacheInterface defines the interface for cached PIX payloads.
type PixCacheInterface interface {
	GetPix(ctx context.Context, chargeID string) (*domain.PixQRCode, error)
	SetPix(ctx context.Context, qr *domain.PixQRCode) error
	InvalidatePix(ctx context.Context, chargeID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface = (*LockStore)(nil)
	_ PixCacheInterface  = (*CacheStore)(nil)
)
