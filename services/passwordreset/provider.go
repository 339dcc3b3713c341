package passwordreset

import (
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvidePasswordResetService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger.Named("passwordreset"))
}

var Options = fx.Options(
	fx.Provide(ProvidePasswordResetService),
)
