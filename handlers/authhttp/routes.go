package authhttp

import (
	"github.com/labstack/echo/v4"
	jwtmw "github.com/tech-arch1tect/authd/middleware/jwt"
	"github.com/tech-arch1tect/authd/middleware/ratelimit"
)

// RegisterRoutes mounts the health check and the /auth routes. Login and the password
// recovery routes carry their own request budgets in store.
func (h *Handler) RegisterRoutes(e *echo.Echo, store ratelimit.Store) {
	rl := &h.cfg.RateLimit
	requireJWT := jwtmw.RequireJWT(h.auth)

	e.GET("/health", h.Health)

	g := e.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login, ratelimit.ForRoute(rl, store, "login", rl.LoginRate))
	g.POST("/refresh-access-token", h.RefreshAccessToken)
	g.POST("/logout", h.Logout)
	g.POST("/forgot-password", h.ForgotPassword, ratelimit.ForRoute(rl, store, "forgot_password", rl.ForgotPasswordRate))
	g.POST("/reset-password", h.ResetPassword, ratelimit.ForRoute(rl, store, "reset_password", rl.ResetPasswordRate))

	g.POST("/logout-all", h.LogoutAll, requireJWT)
	g.GET("/verify", h.Verify, requireJWT)
	g.GET("/view-profile", h.ViewProfile, requireJWT)
	g.PATCH("/edit-profile", h.EditProfile, requireJWT)
	g.POST("/change-password", h.ChangePassword, requireJWT)
	g.GET("/sessions", h.Sessions, requireJWT)
}
