package http

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"podshorts/internal/metrics"
)

// rateLimitMiddleware enforces a per-minute fixed-window limit per client
// IP using Redis. Without Redis, or when Redis is failing, it falls back
// to an in-process token bucket with the same rate.
func rateLimitMiddleware(scope string, perMinute int, rdb *redis.Client, logger *slog.Logger) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	local := newLocalLimiter(perMinute)

	return func(c *fiber.Ctx) error {
		client := c.IP()

		var allowed bool
		if rdb != nil {
			ok, err := allowRedis(c, rdb, scope, client, perMinute)
			if err != nil {
				if logger != nil {
					logger.Warn("rate_limit_redis_failed", "error", err)
				}
				allowed = local.allow(client)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(client)
		}

		if !allowed {
			metrics.RecordRateLimited(scope)
			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Success: false,
				Code:    "RATE_LIMIT_EXCEEDED",
				Error:   "Rate limit exceeded, try again later",
			})
		}
		return c.Next()
	}
}

func allowRedis(c *fiber.Ctx, rdb *redis.Client, scope, client string, limit int) (bool, error) {
	now := time.Now().UTC()
	window := now.Format("200601021504") // YYYYMMDDHHMM minute window
	key := fmt.Sprintf("podshorts:rl:%s:%s:%s", scope, client, window)

	ctx := c.Context()
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First hit in this window; set TTL
		_ = rdb.Expire(ctx, key, time.Minute)
	}
	return count <= int64(limit), nil
}

// localLimiter keeps one token bucket per client. Idle buckets are
// dropped once the map grows past maxClients.
type localLimiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*localEntry
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const maxClients = 10000

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{perMinute: perMinute, clients: make(map[string]*localEntry)}
}

func (l *localLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxClients {
			l.evictIdle(now)
		}
		e = &localEntry{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.clients[client] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *localLimiter) evictIdle(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.seen) > time.Minute {
			delete(l.clients, k)
		}
	}
}
