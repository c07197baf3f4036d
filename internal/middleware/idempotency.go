package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
)

const IdempotencyHeader = "Idempotency-Key"

// ResponseCache stores finished responses by idempotency key.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisResponseCache struct {
	client *redis.Client
}

func NewRedisResponseCache(client *redis.Client) *RedisResponseCache {
	return &RedisResponseCache{client: client}
}

func (c *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware requires an Idempotency-Key header and replays the
// stored response for keys already seen. With a nil cache the header is still
// required but nothing is replayed.
func IdempotencyMiddleware(cache ResponseCache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Idempotency-Key header is required"})
			c.Abort()
			return
		}
		c.Set("idempotency_key", key)

		if cache == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		cached, found, err := cache.Get(ctx, key)
		if err != nil {
			telemetry.Logger.Warn("Idempotency cache lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		}
		if found {
			var resp cachedResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
				c.Abort()
				return
			}
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError || status == http.StatusBadRequest {
			return
		}
		payload, err := json.Marshal(cachedResponse{Status: status, Body: recorder.body.Bytes()})
		if err != nil {
			return
		}
		if err := cache.Set(ctx, key, payload, ttl); err != nil {
			telemetry.Logger.Warn("Failed to cache idempotent response", zap.String("idempotency_key", key), zap.Error(err))
		}
	}
}
