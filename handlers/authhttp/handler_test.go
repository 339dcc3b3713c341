package authhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/middleware/ratelimit"
	"github.com/tech-arch1tect/authd/server"
	"github.com/tech-arch1tect/authd/services/auth"
	jwtservice "github.com/tech-arch1tect/authd/services/jwt"
	"github.com/tech-arch1tect/authd/services/password"
	"github.com/tech-arch1tect/authd/services/passwordreset"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/user"
	"github.com/tech-arch1tect/authd/testutils"
)

func newTestAPI(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()

	db := testutils.SetupTestDB(t, &user.User{}, &refreshtoken.RefreshToken{}, &passwordreset.PasswordResetToken{})

	tokens, err := jwtservice.NewService(cfg, nil)
	require.NoError(t, err)

	svc := auth.NewService(
		cfg,
		db,
		user.NewStore(db, nil),
		refreshtoken.NewService(db, nil),
		passwordreset.NewService(db, nil),
		tokens,
		password.NewHasher(cfg.Auth.BcryptCost, nil),
		nil,
		nil,
	)

	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)

	e := echo.New()
	e.HTTPErrorHandler = server.ErrorHandler(nil)
	NewHandler(svc, cfg, nil).RegisterRoutes(e, store)
	return e
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func do(e *echo.Echo, method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func refreshCookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

const credentials = `{"email":"u@a.com","password":"pw1234"}`

func registerAndLogin(t *testing.T, e *echo.Echo) (tokenResponse, *http.Cookie) {
	t.Helper()

	rec := do(e, http.MethodPost, "/auth/register", credentials)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, "/auth/login", credentials)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := refreshCookieFrom(rec)
	require.NotNil(t, cookie)
	return decodeBody[tokenResponse](t, rec), cookie
}

func TestHandler_Health(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())

	rec := do(e, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"authd-test"}`, rec.Body.String())
}

func TestHandler_Register(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())

	rec := do(e, http.MethodPost, "/auth/register", credentials)
	require.Equal(t, http.StatusOK, rec.Code)

	profile := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "u@a.com", profile["email"])
	assert.Equal(t, true, profile["is_active"])
	assert.NotContains(t, profile, "password_hash")
	assert.NotContains(t, profile, "PasswordHash")

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"duplicate email", credentials, http.StatusConflict, "email already registered"},
		{"malformed email", `{"email":"nope","password":"pw1234"}`, http.StatusUnprocessableEntity, ""},
		{"short password", `{"email":"v@a.com","password":"abc"}`, http.StatusUnprocessableEntity, ""},
		{"empty body", "", http.StatusUnprocessableEntity, ""},
		{"broken json", `{"email":`, http.StatusUnprocessableEntity, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/auth/register", tt.body)

			assert.Equal(t, tt.code, rec.Code)
			body := decodeBody[errorResponse](t, rec)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body.Error)
			} else {
				assert.True(t, strings.HasPrefix(body.Error, "validation failed"), body.Error)
			}
		})
	}
}

func TestHandler_Login(t *testing.T) {
	t.Run("sets cookie and echoes refresh token outside production", func(t *testing.T) {
		e := newTestAPI(t, testutils.GetTestConfig())
		tokens, cookie := registerAndLogin(t, e)

		assert.NotEmpty(t, tokens.AccessToken)
		assert.Equal(t, "bearer", tokens.TokenType)
		assert.Equal(t, cookie.Value, tokens.RefreshToken)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, int((14 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	})

	t.Run("production keeps refresh token out of the body", func(t *testing.T) {
		e := newTestAPI(t, testutils.GetProductionTestConfig())
		do(e, http.MethodPost, "/auth/register", credentials)

		rec := do(e, http.MethodPost, "/auth/login", credentials)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, decodeBody[map[string]any](t, rec), "refresh_token")
		assert.NotNil(t, refreshCookieFrom(rec))
	})

	t.Run("rejections are indistinguishable", func(t *testing.T) {
		e := newTestAPI(t, testutils.GetTestConfig())
		do(e, http.MethodPost, "/auth/register", credentials)

		wrongPassword := do(e, http.MethodPost, "/auth/login", `{"email":"u@a.com","password":"wrong"}`)
		unknownEmail := do(e, http.MethodPost, "/auth/login", `{"email":"x@a.com","password":"pw1234"}`)

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
		assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
		assert.Nil(t, refreshCookieFrom(wrongPassword))
	})
}

func TestHandler_LoginRateLimit(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.RateLimit.Enabled = true
	e := newTestAPI(t, cfg)

	body := `{"email":"u@a.com","password":"wrong"}`
	for i := 0; i < cfg.RateLimit.LoginRate; i++ {
		rec := do(e, http.MethodPost, "/auth/login", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := do(e, http.MethodPost, "/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other routes keep their own budget.
	rec = do(e, http.MethodPost, "/auth/forgot-password", `{"email":"u@a.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RefreshAccessToken(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	_, cookie := registerAndLogin(t, e)

	t.Run("missing token", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/auth/refresh-access-token", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Missing refresh token"}`, rec.Body.String())
	})

	t.Run("cookie rotates once", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(cookie))
		require.Equal(t, http.StatusOK, rec.Code)

		rotated := refreshCookieFrom(rec)
		require.NotNil(t, rotated)
		assert.NotEqual(t, cookie.Value, rotated.Value)

		replay := do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(cookie))
		assert.Equal(t, http.StatusUnauthorized, replay.Code)
		assert.JSONEq(t, `{"error":"refresh token revoked or unknown"}`, replay.Body.String())

		cookie = rotated
	})

	t.Run("body wins over cookie", func(t *testing.T) {
		garbage := &http.Cookie{Name: "refresh_token", Value: "garbage"}
		rec := do(e, http.MethodPost, "/auth/refresh-access-token", `{"refresh_token":"`+cookie.Value+`"}`, withCookie(garbage))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("access token is the wrong type", func(t *testing.T) {
		tokens, _ := loginAgain(t, e)
		rec := do(e, http.MethodPost, "/auth/refresh-access-token", `{"refresh_token":"`+tokens.AccessToken+`"}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid token type"}`, rec.Body.String())
	})
}

func loginAgain(t *testing.T, e *echo.Echo) (tokenResponse, *http.Cookie) {
	t.Helper()
	rec := do(e, http.MethodPost, "/auth/login", credentials)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[tokenResponse](t, rec), refreshCookieFrom(rec)
}

func TestHandler_Logout(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	_, cookie := registerAndLogin(t, e)

	rec := do(e, http.MethodPost, "/auth/logout", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	cleared := refreshCookieFrom(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec = do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	t.Run("without any token", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/auth/logout", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("with garbage token", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/auth/logout", `{"refresh_token":"garbage"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHandler_BearerRoutes(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	tokens, _ := registerAndLogin(t, e)

	t.Run("require a bearer token", func(t *testing.T) {
		for _, path := range []string{"/auth/verify", "/auth/view-profile", "/auth/sessions"} {
			rec := do(e, http.MethodGet, path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		}
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/auth/verify", "", withBearer(tokens.RefreshToken))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid token type"}`, rec.Body.String())
	})

	t.Run("verify", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/auth/verify", "", withBearer(tokens.AccessToken))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[verifyResponse](t, rec)
		assert.True(t, body.Active)
		assert.NotZero(t, body.UserID)
		assert.Equal(t, "u@a.com", body.Email)
	})

	t.Run("view profile", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/auth/view-profile", "", withBearer(tokens.AccessToken))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u@a.com", decodeBody[map[string]any](t, rec)["email"])
	})

	t.Run("edit profile", func(t *testing.T) {
		rec := do(e, http.MethodPatch, "/auth/edit-profile", `{"full_name":"Ada Lovelace"}`, withBearer(tokens.AccessToken))

		require.Equal(t, http.StatusOK, rec.Code)
		profile := decodeBody[map[string]any](t, rec)
		assert.Equal(t, "Ada Lovelace", profile["full_name"])
		assert.Equal(t, "", profile["phone"])
	})

	t.Run("edit profile rejects unknown fields", func(t *testing.T) {
		rec := do(e, http.MethodPatch, "/auth/edit-profile", `{"email":"evil@a.com"}`, withBearer(tokens.AccessToken))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("edit profile rejects long values", func(t *testing.T) {
		rec := do(e, http.MethodPatch, "/auth/edit-profile", `{"phone":"`+strings.Repeat("1", 33)+`"}`, withBearer(tokens.AccessToken))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("sessions", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/auth/sessions", "", withBearer(tokens.AccessToken))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[map[string][]auth.Session](t, rec)
		assert.Len(t, body["sessions"], 1)
	})
}

func TestHandler_LogoutAll(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	tokens, first := registerAndLogin(t, e)
	_, second := loginAgain(t, e)

	rec := do(e, http.MethodPost, "/auth/logout-all", "", withBearer(tokens.AccessToken))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","revoked":2}`, rec.Body.String())

	for _, c := range []*http.Cookie{first, second} {
		rec := do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(c))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestHandler_ChangePassword(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	tokens, cookie := registerAndLogin(t, e)

	rec := do(e, http.MethodPost, "/auth/change-password", `{"old_password":"wrong","new_password":"n3w-passw0rd"}`, withBearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/auth/change-password", `{"old_password":"pw1234","new_password":"short"}`, withBearer(tokens.AccessToken))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPost, "/auth/change-password", `{"old_password":"pw1234","new_password":"n3w-passw0rd"}`, withBearer(tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/auth/login", `{"email":"u@a.com","password":"n3w-passw0rd"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_PasswordRecovery(t *testing.T) {
	e := newTestAPI(t, testutils.GetTestConfig())
	_, cookie := registerAndLogin(t, e)

	unknown := do(e, http.MethodPost, "/auth/forgot-password", `{"email":"x@a.com"}`)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, `{"status":"ok"}`, unknown.Body.String())

	rec := do(e, http.MethodPost, "/auth/forgot-password", `{"email":"u@a.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	forgot := decodeBody[forgotPasswordResponse](t, rec)
	require.NotEmpty(t, forgot.ResetToken)

	reset := `{"token":"` + forgot.ResetToken + `","new_password":"n3w-passw0rd"}`
	rec = do(e, http.MethodPost, "/auth/reset-password", reset)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/auth/reset-password", reset)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"token already used"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/auth/refresh-access-token", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/auth/reset-password", `{"token":"unknown","new_password":"n3w-passw0rd"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, rec.Body.String())
}

func TestHandler_ForgotPasswordProductionHidesToken(t *testing.T) {
	e := newTestAPI(t, testutils.GetProductionTestConfig())
	do(e, http.MethodPost, "/auth/register", credentials)

	rec := do(e, http.MethodPost, "/auth/forgot-password", `{"email":"u@a.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
