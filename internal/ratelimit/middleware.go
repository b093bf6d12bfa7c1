// Package ratelimit throttles the stateless calculation endpoints. The
// limiter state lives in Redis so all API replicas share one budget.
package ratelimit

import (
	"net/http"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisLimiter builds a limiter from a rate expression such as "120-M".
func NewRedisLimiter(rdb *redis.Client, rateExpr string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(rateExpr)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "polis:ratelimit",
	})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// Handler enforces the limit per client IP before delegating.
type Handler struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter
// backend failures let the request through rather than failing closed.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Limiter.GetIPKey(r)
		lctx, err := h.Limiter.Get(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
