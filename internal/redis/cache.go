package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cobranca/internal/domain"
)

// DefaultPixCacheTTL caps how long a QR payload is served from cache.
const DefaultPixCacheTTL = 15 * time.Minute

const pixCachePrefix = "cache:pix:"

// CacheStore handles gateway payload caching in Redis.
type CacheStore struct {
	client *redis.Client
	maxTTL time.Duration
	now    func() time.Time
}

// NewCacheStore creates a new CacheStore. maxTTL <= 0 uses DefaultPixCacheTTL.
func NewCacheStore(client *redis.Client, maxTTL time.Duration) *CacheStore {
	if maxTTL <= 0 {
		maxTTL = DefaultPixCacheTTL
	}
	return &CacheStore{client: client, maxTTL: maxTTL, now: time.Now}
}

// cachedPix represents a cached PIX QR code.
type cachedPix struct {
	ChargeID       string    `json:"charge_id"`
	EncodedImage   string    `json:"encoded_image"`
	Payload        string    `json:"payload"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// GetPix retrieves a PIX payload from cache. Returns nil, nil on a miss.
func (s *CacheStore) GetPix(ctx context.Context, chargeID string) (*domain.PixQRCode, error) {
	data, err := s.client.Get(ctx, pixCachePrefix+chargeID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached cachedPix
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.PixQRCode{
		ChargeID:       cached.ChargeID,
		EncodedImage:   cached.EncodedImage,
		Payload:        cached.Payload,
		ExpirationDate: cached.ExpirationDate,
	}, nil
}

// SetPix stores a PIX payload until it expires, capped at the store's max TTL.
// Payloads that are already expired are not cached.
func (s *CacheStore) SetPix(ctx context.Context, qr *domain.PixQRCode) error {
	ttl := pixTTL(s.now(), qr.ExpirationDate, s.maxTTL)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedPix{
		ChargeID:       qr.ChargeID,
		EncodedImage:   qr.EncodedImage,
		Payload:        qr.Payload,
		ExpirationDate: qr.ExpirationDate,
	})
	if err != nil {
		return err
	}

	return s.client.Set(ctx, pixCachePrefix+qr.ChargeID, data, ttl).Err()
}

// pixTTL is the time until expiresAt, capped at maxTTL. A zero expiresAt
// means the gateway gave no expiry.
func pixTTL(now, expiresAt time.Time, maxTTL time.Duration) time.Duration {
	if expiresAt.IsZero() {
		return maxTTL
	}
	return min(expiresAt.Sub(now), maxTTL)
}

// InvalidatePix removes a PIX payload from cache.
func (s *CacheStore) InvalidatePix(ctx context.Context, chargeID string) error {
	return s.client.Del(ctx, pixCachePrefix+chargeID).Err()
}
