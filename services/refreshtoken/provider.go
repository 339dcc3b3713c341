package refreshtoken

import (
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRefreshTokenService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger.Named("refreshtoken"))
}

var Options = fx.Options(
	fx.Provide(ProvideRefreshTokenService),
)
