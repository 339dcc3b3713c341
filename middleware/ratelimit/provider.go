package ratelimit

import (
	"context"

	"github.com/tech-arch1tect/authd/config"
	"go.uber.org/fx"
)

// NewStore builds the store named by RATE_LIMIT_STORE. Only "memory" exists, so the limits
// are per process.
func NewStore(rateLimitConfig *config.RateLimitConfig) Store {
	switch rateLimitConfig.Store {
	case "memory":
		fallthrough
	default:
		return NewMemoryStore(rateLimitConfig.Period)
	}
}

func ProvideRateLimitStore(lc fx.Lifecycle, cfg *config.Config) Store {
	store := NewStore(&cfg.RateLimit)

	if closer, ok := store.(interface{ Close() }); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				closer.Close()
				return nil
			},
		})
	}

	return store
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
)
