package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/storelens/avatax-bridge/internal/ratelimit"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAllowsWithinLimit(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.New(newRedisClient(t), 5)
	require.NoError(t, err)
	handler := ratelimit.Middleware{Limiter: limiter}.Handler(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/1/tax", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.New(newRedisClient(t), 2)
	require.NoError(t, err)
	handler := ratelimit.Middleware{Limiter: limiter}.Handler(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/1/tax", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		handler.ServeHTTP(last, req)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
}

func TestMiddlewareLimitsPerClient(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.New(newRedisClient(t), 1)
	require.NoError(t, err)
	handler := ratelimit.Middleware{Limiter: limiter}.Handler(okHandler())

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "10.0.0.3:1234"
	handler.ServeHTTP(first, reqA)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "10.0.0.4:1234"
	handler.ServeHTTP(second, reqB)
	require.Equal(t, http.StatusOK, second.Code)
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.New(client, 1)
	require.NoError(t, err)

	// Kill the backing store; requests must still pass.
	mr.Close()

	var sawErr error
	handler := ratelimit.Middleware{
		Limiter: limiter,
		OnError: func(err error) { sawErr = err },
	}.Handler(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Error(t, sawErr)
}

func TestMiddlewareWithoutLimiterPassesThrough(t *testing.T) {
	t.Parallel()

	handler := ratelimit.Middleware{}.Handler(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
