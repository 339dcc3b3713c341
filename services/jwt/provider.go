package jwt

import (
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
)

func NewJWTService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(cfg, logger.Named("jwt"))
}

var Options = fx.Options(
	fx.Provide(NewJWTService),
)
