// Package authhttp exposes the auth service over HTTP: JSON bodies in and out, the refresh
// token cookie, and the mapping from the auth error taxonomy to status codes.
package authhttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/authd/config"
	jwtmw "github.com/tech-arch1tect/authd/middleware/jwt"
	"github.com/tech-arch1tect/authd/services/auth"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/user"
	"go.uber.org/zap"
)

type Handler struct {
	auth   *auth.Service
	cfg    *config.Config
	logger *logging.Service
}

func NewHandler(authService *auth.Service, cfg *config.Config, logger *logging.Service) *Handler {
	return &Handler{
		auth:   authService,
		cfg:    cfg,
		logger: logger,
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Service: h.cfg.App.Name})
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := decodeJSON(c, &req, false); err != nil {
		return err
	}

	u, err := h.auth.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := decodeJSON(c, &req, false); err != nil {
		return err
	}

	pair, err := h.auth.Login(c.Request().Context(), req.Email, req.Password, req.DeviceID, clientTelemetry(c))
	if err != nil {
		return httpError(err)
	}

	return h.respondWithPair(c, pair)
}

// RefreshAccessToken rotates the presented refresh token. The body wins over the cookie.
func (h *Handler) RefreshAccessToken(c echo.Context) error {
	var req refreshRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		return err
	}

	raw := req.RefreshToken
	if raw == "" {
		raw = h.refreshCookieValue(c)
	}
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing refresh token")
	}

	pair, err := h.auth.Refresh(c.Request().Context(), raw, clientTelemetry(c))
	if err != nil {
		return httpError(err)
	}

	return h.respondWithPair(c, pair)
}

func (h *Handler) respondWithPair(c echo.Context, pair *auth.TokenPair) error {
	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)

	resp := tokenResponse{AccessToken: pair.AccessToken, TokenType: "bearer"}
	if exposeTokens(h.cfg) {
		resp.RefreshToken = pair.RefreshToken
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout always succeeds from the client's point of view. The cookie wins over the body.
func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		return err
	}

	raw := h.refreshCookieValue(c)
	if raw == "" {
		raw = req.RefreshToken
	}

	if err := h.auth.Logout(c.Request().Context(), raw); err != nil {
		h.logger.Error("logout failed to revoke session", zap.Error(err))
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) LogoutAll(c echo.Context) error {
	revoked, err := h.auth.LogoutAll(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, logoutAllResponse{Status: "ok", Revoked: revoked})
}

func (h *Handler) Verify(c echo.Context) error {
	u := jwtmw.GetUser(c)
	if u == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInactiveOrMissingUser.Error())
	}

	return c.JSON(http.StatusOK, verifyResponse{Active: true, UserID: u.ID, Email: u.Email})
}

func (h *Handler) ViewProfile(c echo.Context) error {
	u, err := h.auth.ViewProfile(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, u)
}

// EditProfile accepts full_name and phone only. Any other field is rejected.
func (h *Handler) EditProfile(c echo.Context) error {
	var req editProfileRequest
	if err := decodeJSON(c, &req, true); err != nil {
		return err
	}

	u, err := h.auth.EditProfile(c.Request().Context(), jwtmw.GetUserID(c), user.ProfileUpdate{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := decodeJSON(c, &req, false); err != nil {
		return err
	}

	if err := h.auth.ChangePassword(c.Request().Context(), jwtmw.GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		return httpError(err)
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) Sessions(c echo.Context) error {
	sessions, err := h.auth.ListSessions(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// ForgotPassword answers identically whether or not the email is registered.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := decodeJSON(c, &req, false); err != nil {
		return err
	}

	token, err := h.auth.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}

	resp := forgotPasswordResponse{Status: "ok"}
	if exposeTokens(h.cfg) {
		resp.ResetToken = token
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := decodeJSON(c, &req, false); err != nil {
		return err
	}

	if err := h.auth.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func clientTelemetry(c echo.Context) refreshtoken.Telemetry {
	return refreshtoken.Telemetry{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// httpError maps the auth taxonomy onto status codes. Anything outside it is a 500 whose
// cause stays internal.
func httpError(err error) error {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, auth.ErrEmailTaken.Error())
	case errors.Is(err, auth.ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case auth.IsUnauthorized(err):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
}

var errBodyRequired = echo.NewHTTPError(http.StatusUnprocessableEntity, "validation failed: request body required")

func decodeJSON(c echo.Context, dst any, strict bool) error {
	dec := json.NewDecoder(c.Request().Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "validation failed: malformed JSON body").SetInternal(err)
	}
	return nil
}

// decodeOptionalJSON treats an absent body as an empty request.
func decodeOptionalJSON(c echo.Context, dst any) error {
	if err := decodeJSON(c, dst, false); err != nil && err != errBodyRequired {
		return err
	}
	return nil
}
