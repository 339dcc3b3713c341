// Package ratelimit applies fixed-window request budgets per route and client IP.
package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/authd/config"
)

type Config struct {
	// Name separates the budgets of different routes that share a store.
	Name           string
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Now            func() time.Time
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(time.Minute)
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.KeyGenerator(c)
			if cfg.Name != "" {
				key = cfg.Name + ":" + key
			}
			now := cfg.Now()

			count, resetTime, exists := cfg.Store.Get(key)
			if !exists {
				resetTime = now.Add(cfg.Period)
			}

			if cfg.CountMode == config.CountAll {
				// Increment is atomic, so concurrent requests cannot overdraw the budget.
				count = cfg.Store.Increment(key, resetTime)
				if count > cfg.Rate {
					return limitReached(c, cfg, resetTime, now)
				}
				setHeaders(c, cfg.Rate, cfg.Rate-count, resetTime)
				return next(c)
			}

			if count >= cfg.Rate {
				return limitReached(c, cfg, resetTime, now)
			}
			setHeaders(c, cfg.Rate, cfg.Rate-count-1, resetTime)

			err := next(c)

			status := responseStatus(c, err)
			shouldCount := false
			switch cfg.CountMode {
			case config.CountFailures:
				shouldCount = status >= http.StatusBadRequest
			case config.CountSuccess:
				shouldCount = status < http.StatusBadRequest
			}
			if shouldCount {
				cfg.Store.Increment(key, resetTime)
			}

			return err
		}
	}
}

// responseStatus is the status the client will see. Errors are rendered after the
// middleware chain returns, so the recorded status is not yet final.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func setHeaders(c echo.Context, rate, remaining int, resetTime time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}

func limitReached(c echo.Context, cfg *Config, resetTime, now time.Time) error {
	setHeaders(c, cfg.Rate, 0, resetTime)
	retryAfter := int(resetTime.Sub(now).Round(time.Second) / time.Second)
	c.Response().Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	return cfg.OnLimitReached(c)
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}

// ForRoute returns the budget middleware for one route, or a pass-through when rate
// limiting is disabled.
func ForRoute(rl *config.RateLimitConfig, store Store, name string, rate int) echo.MiddlewareFunc {
	if !rl.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return Middleware(&Config{
		Name:      name,
		Store:     store,
		Rate:      rate,
		Period:    rl.Period,
		CountMode: rl.CountMode,
	})
}
