package jwt

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/authd/services/auth"
	"github.com/tech-arch1tect/authd/services/user"
)

const (
	UserIDKey = "_jwt_user_id"
	UserKey   = "_jwt_user"
)

// Authenticator resolves a bearer access token to its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*user.User, error)
}

func RequireJWT(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "JWT token required")
			}

			u, err := authenticator.Authenticate(c.Request().Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrWrongTokenType):
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token type")
				case errors.Is(err, auth.ErrInactiveOrMissingUser):
					return echo.NewHTTPError(http.StatusUnauthorized, "User not found or inactive")
				case errors.Is(err, auth.ErrInvalidToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
				default:
					return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
				}
			}

			c.Set(UserIDKey, u.ID)
			c.Set(UserKey, u)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetUser(c echo.Context) *user.User {
	if u, ok := c.Get(UserKey).(*user.User); ok {
		return u
	}
	return nil
}
