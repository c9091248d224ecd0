package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestTransferRateLimitThrottlesAndExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/transfer", TransferRateLimit(cache, 3), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func() int {
		req := httptest.NewRequest(fiber.MethodPost, "/transfer", strings.NewReader(`{"from_user_id":"u1"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 3; i++ {
		if status := send(); status != fiber.StatusOK {
			t.Fatalf("request %d throttled early: %d", i+1, status)
		}
	}
	if status := send(); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", status)
	}

	// The counter gets its TTL at creation, so a crashed process can never
	// leave a sender throttled forever.
	if mr.TTL("rl:transfer:u1") <= 0 {
		t.Fatal("rate limit counter has no expiry")
	}

	mr.FastForward(time.Minute + time.Second)
	if status := send(); status != fiber.StatusOK {
		t.Fatalf("expected reset after the window, got %d", status)
	}
}
