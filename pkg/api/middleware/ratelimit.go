package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
)

var rateLimitRejects = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "aks_console_rate_limit_rejects_total",
		Help: "Total number of requests rejected by the rate limiter",
	},
)

// RateLimit guards a route group with a shared token bucket.
func RateLimit(limit rate.Limit, burst int) fiber.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			rateLimitRejects.Inc()
			c.Set("Retry-After", "1")
			return apperrors.NewWithContext(apperrors.ErrCodeRateLimited, "Rate limit exceeded", map[string]any{
				"limit": float64(limit),
				"burst": burst,
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(int(limit)))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
		return c.Next()
	}
}
