package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

// clientKey identifies the caller: the principal when authenticated,
// otherwise the remote host
func clientKey(r *http.Request) string {
	if principal, ok := GetPrincipal(r.Context()); ok {
		return "user:" + principal.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type windowLimiter struct {
	client *redis.Client
	cfg    RateLimitConfig
	logger *zap.Logger
}

// hit counts one request in the caller's current window. The first hit of a
// window starts its expiry.
func (l *windowLimiter) hit(ctx context.Context, key string) (int64, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			l.logger.Error("Failed to start rate limit window", zap.Error(err), zap.String("key", key))
		}
	}
	return count, nil
}

// resetIn is how long until key's window closes
func (l *windowLimiter) resetIn(ctx context.Context, key string) time.Duration {
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return l.cfg.Window
	}
	return ttl
}

// RateLimitMiddleware allows RequestsPerWindow requests per caller in a fixed
// Redis window. Redis failures let the request through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	limiter := &windowLimiter{client: redisClient, cfg: config, logger: logger}
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := clientKey(r)
			key := config.KeyPrefix + ":" + caller

			count, err := limiter.hit(r.Context(), key)
			if err != nil {
				logger.Error("Rate limiter unavailable", zap.Error(err), zap.String("key", key))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)

			remaining := int64(config.RequestsPerWindow) - count
			if remaining >= 0 {
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
				next.ServeHTTP(w, r)
				return
			}

			wait := limiter.resetIn(r.Context(), key)
			logger.Warn("Rate limit exceeded",
				zap.String("caller", caller),
				zap.Int64("count", count),
				zap.Int("limit", config.RequestsPerWindow),
			)
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(wait).Unix(), 10))
			h.Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
			RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}
