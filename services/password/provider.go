package password

import (
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
)

func ProvideHasher(cfg *config.Config, logger *logging.Service) *Hasher {
	return NewHasher(cfg.Auth.BcryptCost, logger.Named("password"))
}

var Options = fx.Options(
	fx.Provide(ProvideHasher),
)
