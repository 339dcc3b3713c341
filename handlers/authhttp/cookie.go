package authhttp

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/authd/config"
)

func (h *Handler) setRefreshCookie(c echo.Context, token string, expiresAt time.Time) {
	cookie := h.refreshCookie()
	cookie.Value = token
	cookie.Expires = expiresAt
	cookie.MaxAge = int(h.cfg.JWT.RefreshExpiry.Seconds())
	c.SetCookie(cookie)
}

func (h *Handler) clearRefreshCookie(c echo.Context) {
	cookie := h.refreshCookie()
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	c.SetCookie(cookie)
}

func (h *Handler) refreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Path:     h.cfg.Cookie.Path,
		Domain:   h.cfg.Cookie.Domain,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: mapSameSite(h.cfg.Cookie.SameSite),
	}
}

func (h *Handler) refreshCookieValue(c echo.Context) string {
	cookie, err := c.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func mapSameSite(setting string) http.SameSite {
	switch setting {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// exposeTokens reports whether raw secrets may appear in response bodies.
func exposeTokens(cfg *config.Config) bool {
	return !cfg.IsProduction()
}
