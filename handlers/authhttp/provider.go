package authhttp

import (
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/middleware/ratelimit"
	"github.com/tech-arch1tect/authd/server"
	"github.com/tech-arch1tect/authd/services/auth"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/fx"
)

// Version is reported in the API document.
var Version = "dev"

func registerRoutes(srv *server.Server, h *Handler, store ratelimit.Store, cfg *config.Config, logger *logging.Service) {
	h.RegisterRoutes(srv.Echo(), store)

	if cfg.Docs.Enabled {
		NewDocument(cfg.App.Name, Version, cfg.Cookie.Name).Mount(srv.Echo(), "/docs", cfg.Docs.Key)
		logger.Info("api docs mounted at /docs")
	}
}

func ProvideHandler(svc *auth.Service, cfg *config.Config, logger *logging.Service) *Handler {
	return NewHandler(svc, cfg, logger.Named("http"))
}

var Module = fx.Options(
	fx.Provide(ProvideHandler),
	fx.Invoke(registerRoutes),
)
