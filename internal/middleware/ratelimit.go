package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	// Max requests per window
	Max    int
	Window time.Duration
	// Scope separates counters of different limited route groups
	Scope        string
	KeyGenerator func(*fiber.Ctx) string
}

// DefaultRateLimitConfig limits by operator subject, falling back to IP.
func DefaultRateLimitConfig(scope string, max int) RateLimitConfig {
	return RateLimitConfig{
		Max:    max,
		Window: time.Minute,
		Scope:  scope,
		KeyGenerator: func(c *fiber.Ctx) string {
			if operator, ok := GetOperator(c); ok {
				return "op:" + operator
			}
			return "ip:" + c.IP()
		},
	}
}

// RateLimitMiddleware is a Redis sliding-window limiter for the compute
// heavy inference endpoints.
type RateLimitMiddleware struct {
	redis  redis.Cmdable
	config RateLimitConfig
	now    func() time.Time
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(client redis.Cmdable, config RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{redis: client, config: config, now: time.Now}
}

// Handler returns the rate limit handler
func (m *RateLimitMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.config.Max <= 0 {
			return c.Next()
		}

		ctx := c.UserContext()
		key := fmt.Sprintf("priceuq:ratelimit:%s:%s", m.config.Scope, m.config.KeyGenerator(c))
		now := m.now()
		windowStart := now.Add(-m.config.Window).UnixNano()
		reset := strconv.FormatInt(now.Add(m.config.Window).Unix(), 10)

		m.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))

		count, err := m.redis.ZCard(ctx, key).Result()
		if err != nil {
			// Fail open when Redis is unavailable.
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(m.config.Max))
		c.Set("X-RateLimit-Reset", reset)

		if count >= int64(m.config.Max) {
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.Itoa(int(m.config.Window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
		}

		pipe := m.redis.TxPipeline()
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: fmt.Sprintf("%d:%s", now.UnixNano(), GetRequestID(c)),
		})
		pipe.Expire(ctx, key, 2*m.config.Window)
		_, _ = pipe.Exec(ctx)

		c.Set("X-RateLimit-Remaining", strconv.Itoa(m.config.Max-int(count)-1))
		return c.Next()
	}
}
