package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour

	// inFlightTTL bounds how long a crashed request blocks its key.
	inFlightTTL = 5 * time.Minute
)

// ErrRequestInFlight is returned by IdempotencyStore.Begin when the same key
// is being processed by another request.
var ErrRequestInFlight = errors.New("request with this idempotency key is in flight")

// CachedResponse is the stored response of an idempotent request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// IdempotencyStore persists idempotency keys and their responses.
type IdempotencyStore interface {
	// Get returns the stored response, or nil when the key is unknown.
	Get(ctx context.Context, key string) (*CachedResponse, error)
	// Begin claims the key for the current request.
	Begin(ctx context.Context, key string) error
	// Complete stores the response and releases the claim.
	Complete(ctx context.Context, key string, resp *CachedResponse) error
	// Abandon releases the claim without storing a response.
	Abandon(ctx context.Context, key string) error
}

// RedisIdempotencyStore keeps idempotency state in Redis.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore creates a new RedisIdempotencyStore.
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.client.Get(ctx, "idempotency:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) error {
	ok, err := s.client.SetNX(ctx, "idempotency:inflight:"+key, "1", inFlightTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestInFlight
	}
	return nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "idempotency:"+key, data, idempotencyTTL)
		pipe.Del(ctx, "idempotency:inflight:"+key)
		return nil
	})
	return err
}

func (s *RedisIdempotencyStore) Abandon(ctx context.Context, key string) error {
	return s.client.Del(ctx, "idempotency:inflight:"+key).Err()
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware returns middleware that replays the stored response
// of a mutating request carrying a known Idempotency-Key. Keys are scoped to
// method and path so one key cannot replay a different operation.
//
// Responses the client is expected to retry (5xx, 409 busy, 429 rate
// limited) are not stored.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scopedKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		cached, err := store.Get(ctx, scopedKey)
		if err != nil {
			// Store unavailable - proceed without idempotency.
			c.Next()
			return
		}

		if cached != nil {
			for k, v := range cached.Headers {
				for _, val := range v {
					c.Header(k, val)
				}
			}
			c.Header(replayHeader, "true")
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		if err := store.Begin(ctx, scopedKey); err != nil {
			if errors.Is(err, ErrRequestInFlight) {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":     err.Error(),
					"code":      "request_in_flight",
					"retryable": true,
				})
				return
			}
			c.Next()
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// The operation ran to completion regardless of the client; so does
		// bookkeeping.
		ctx = context.WithoutCancel(ctx)

		status := c.Writer.Status()
		if !storable(status) {
			_ = store.Abandon(ctx, scopedKey)
			return
		}

		_ = store.Complete(ctx, scopedKey, &CachedResponse{
			StatusCode: status,
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		})
	}
}

func storable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError,
		status == http.StatusConflict,
		status == http.StatusTooManyRequests:
		return false
	}
	return true
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
