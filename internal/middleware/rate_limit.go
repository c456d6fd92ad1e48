package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimit caps requests per minute per caller for one scope. The caller is the token subject
// or, without one, the client IP. Redis counters are shared across instances; without Redis a
// process-local token bucket per caller is used.
func RateLimit(cache *redis.Client, scope string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	local := newLocalLimiter(float64(maxPerMin)/60, maxPerMin, 10*time.Minute)

	return func(c *fiber.Ctx) error {
		caller, _ := c.Locals("user_id").(string)
		caller = strings.TrimSpace(caller)
		if caller == "" {
			caller = c.IP()
		}

		if cache == nil {
			if !local.allow(caller, time.Now()) {
				return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
			}
			return c.Next()
		}

		key := "rl:" + scope + ":" + caller
		cnt, err := countRequest(c.UserContext(), cache, key)
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// countRequest increments the window counter and arms its expiry in one transaction. ExpireNX
// also repairs a counter left without a TTL.
func countRequest(ctx context.Context, cache *redis.Client, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, time.Minute)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type localLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*limiterEntry
	hits  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(rps float64, burst int, idleTTL time.Duration) *localLimiter {
	return &localLimiter{limit: rate.Limit(rps), burst: burst, idleTTL: idleTTL, byKey: make(map[string]*limiterEntry)}
}

func (l *localLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
