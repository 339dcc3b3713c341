package logging

import (
	"context"

	"github.com/tech-arch1tect/authd/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
	fx.Invoke(registerSync),
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	loggingConfig := Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}

	logger, err := NewService(loggingConfig)
	if err != nil {
		return nil, err
	}

	return logger.With(configFields(cfg)...), nil
}

func configFields(cfg *config.Config) []zap.Field {
	return []zap.Field{
		zap.String("service", cfg.App.Name),
		zap.String("env", string(cfg.App.Env)),
	}
}

func registerSync(lc fx.Lifecycle, logger *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stdout cannot be synced on most platforms
			_ = logger.Sync()
			return nil
		},
	})
}
