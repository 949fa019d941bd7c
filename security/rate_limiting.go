package security

import (
	"fmt"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"ticketing-core/config"
)

type RateLimiter struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRateLimiter(redisClient *redis.Client, cfg *config.Config) *RateLimiter {
	return &RateLimiter{redis: redisClient, cfg: cfg}
}

// ScanRateLimit throttles QR validation per validator device (falling back
// to client IP). A gate scanning faster than the configured rate per window
// is either misconfigured or abusive.
func (r *RateLimiter) ScanRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident := c.Request().Header.Get("X-Validator-Id")
			if ident == "" {
				ident = c.RealIP()
			}
			key := fmt.Sprintf("ratelimit:scan:%s", ident)
			ctx := c.Request().Context()

			count, err := r.redis.Incr(ctx, key).Result()
			if err != nil {
				// limiter outage must not block redemption
				return next(c)
			}
			if count == 1 {
				r.redis.Expire(ctx, key, r.cfg.ScanRateWindow)
			}
			if count > int64(r.cfg.ScanRateLimit) {
				return c.JSON(429, map[string]string{
					"error": "scan rate limit exceeded, slow down",
				})
			}

			return next(c)
		}
	}
}
