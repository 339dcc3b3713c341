package user

import (
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideStore(db *gorm.DB, logger *logging.Service) *Store {
	return NewStore(db, logger.Named("user"))
}

var Options = fx.Options(
	fx.Provide(ProvideStore),
)
