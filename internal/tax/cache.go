package tax

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/obs"
)

// Cache stores estimate results in Redis keyed by a fingerprint of the request,
// so any change to the order's lines invalidates the entry naturally.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

// EstimateKey derives the cache key for an estimate request.
func EstimateKey(orderID int64, req avatax.GetTaxRequest) string {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Sprintf("tax:estimate:%d", orderID)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("tax:estimate:%d:%s", orderID, hex.EncodeToString(sum[:8]))
}

// Get unmarshals a cached estimate into dst. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, key string, dst *avatax.GetTaxResult) (bool, error) {
	if c == nil || c.Client == nil || key == "" {
		return false, nil
	}
	data, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			if obs.TaxEstimateCacheTotal != nil {
				obs.TaxEstimateCacheTotal.WithLabelValues("miss").Inc()
			}
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	if obs.TaxEstimateCacheTotal != nil {
		obs.TaxEstimateCacheTotal.WithLabelValues("hit").Inc()
	}
	return true, nil
}

// Set serialises the estimate and stores it with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v avatax.GetTaxResult) error {
	if c == nil || c.Client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return c.Client.Set(ctx, key, data, ttl).Err()
}
