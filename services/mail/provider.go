package mail

import (
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
)

// ProvideMailService returns nil when no SMTP host is configured. Development
// deployments never send mail.
func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	if cfg.Mail.Host == "" {
		return nil, nil
	}
	return NewService(&cfg.Mail, logger.Named("mail"))
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
)
