package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/storelens/avatax-bridge/internal/common"
)

// New builds a Redis-backed limiter allowing perMinute requests per client.
func New(client *redis.Client, perMinute int64) (*limiter.Limiter, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "ratelimit",
	})
	if err != nil {
		return nil, err
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: perMinute}), nil
}

// Middleware enforces per-IP rate limits before delegating to the next handler.
type Middleware struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// Handler implements the http.Handler middleware interface. Limiter errors
// fail open so a Redis outage never blocks traffic.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := m.Limiter.Get(r.Context(), m.Limiter.GetIPKey(r))
		if err != nil {
			if m.OnError != nil {
				m.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
