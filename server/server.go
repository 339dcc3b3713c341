package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/tech-arch1tect/authd/services/telemetry"
	"go.uber.org/zap"
)

const hstsMaxAge = 31536000

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logging.Service
}

func New(cfg *config.Config, logger *logging.Service, tp *telemetry.Provider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	configureTrustedProxies(e, cfg.Server.TrustedProxies, logger)

	if tp == nil {
		tp = telemetry.NewProvider(nil)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(tp))
	e.Use(logging.RequestLogger(logger, "/health"))
	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}
	if cfg.Server.SecureHeaders {
		secure := middleware.DefaultSecureConfig
		if cfg.Server.EnableHSTS {
			secure.HSTSMaxAge = hstsMaxAge
		}
		e.Use(middleware.SecureWithConfig(secure))
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: cfg.CORS.AllowCredentials,
		}))
	}

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
}

func (s *Server) Start() {
	addr := s.Addr()
	s.logger.Info("starting server", zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server stopped unexpectedly", zap.Error(err))
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) Group(prefix string, m ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(prefix, m...)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ErrorHandler renders every error as {"error": message}. Anything that is not an
// *echo.HTTPError becomes a generic 500 so internals never reach the client.
func ErrorHandler(logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(http.StatusInternalServerError)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			message = fmt.Sprint(he.Message)
			if he.Internal != nil {
				logger.WithContext(c.Request().Context()).Error("request failed",
					zap.Int("status", code),
					zap.Error(he.Internal))
			}
		} else {
			logger.WithContext(c.Request().Context()).Error("unhandled error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]string{"error": message})
		}
		if err != nil {
			logger.Error("failed to write error response", zap.Error(err))
		}
	}
}

func configureTrustedProxies(e *echo.Echo, trustedProxies []string, logger *logging.Service) {
	var options []echo.TrustOption
	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}

		if !strings.Contains(proxy, "/") {
			if ip := net.ParseIP(proxy); ip != nil {
				if ip.To4() != nil {
					proxy += "/32"
				} else {
					proxy += "/128"
				}
			}
		}

		_, ipNet, err := net.ParseCIDR(proxy)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", zap.String("proxy", proxy))
			continue
		}
		options = append(options, echo.TrustIPRange(ipNet))
	}

	if len(options) == 0 {
		e.IPExtractor = echo.ExtractIPDirect()
		return
	}

	options = append(options,
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	)
	e.IPExtractor = echo.ExtractIPFromXFFHeader(options...)
}
