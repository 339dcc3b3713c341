package auth

import (
	"github.com/tech-arch1tect/authd/config"
	jwtservice "github.com/tech-arch1tect/authd/services/jwt"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/tech-arch1tect/authd/services/mail"
	"github.com/tech-arch1tect/authd/services/password"
	"github.com/tech-arch1tect/authd/services/passwordreset"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/telemetry"
	"github.com/tech-arch1tect/authd/services/user"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type ServiceParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Users     *user.Store
	Sessions  *refreshtoken.Service
	Resets    *passwordreset.Service
	Tokens    *jwtservice.Service
	Hasher    *password.Hasher
	Logger    *logging.Service
	Telemetry *telemetry.Provider `optional:"true"`
	Mail      *mail.Service       `optional:"true"`
}

func ProvideAuthService(p ServiceParams) *Service {
	tp := p.Telemetry
	if tp == nil {
		tp = telemetry.NewProvider(nil)
	}

	svc := NewService(p.Config, p.DB, p.Users, p.Sessions, p.Resets, p.Tokens, p.Hasher, tp.Tracer(), p.Logger.Named("auth"))

	// The mail provider yields a nil *Service when SMTP is not configured. Only a usable
	// client may become the Mailer.
	if p.Mail != nil {
		svc.SetMailer(p.Mail)
	}

	return svc
}

var Module = fx.Options(
	fx.Provide(ProvideAuthService),
)
