package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// TransferRateLimit limits transfer attempts per sender (or IP as a
// fallback) using Redis if available. Fail-open on cache errors: the ledger
// still enforces correctness, this only shields it from bursts.
func TransferRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			FromUserID string `json:"from_user_id"`
		}
		_ = c.BodyParser(&req)
		sender := strings.TrimSpace(req.FromUserID)
		if sender == "" {
			sender = c.IP()
		}
		key := "rl:transfer:" + sender

		// SET NX EX creates the counter and its TTL in one step, so a crash
		// between two commands can never leave an immortal counter that
		// throttles the sender forever.
		ctx := c.UserContext()
		created, err := cache.SetNX(ctx, key, 1, time.Minute).Result()
		if err != nil {
			return c.Next()
		}
		cnt := int64(1)
		if !created {
			cnt, err = cache.Incr(ctx, key).Result()
			if err != nil {
				return c.Next()
			}
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many transfer attempts, try again later")
		}
		return c.Next()
	}
}
