package authhttp

import (
	"net/http"

	"github.com/tech-arch1tect/authd/openapi"
	"github.com/tech-arch1tect/authd/services/auth"
	"github.com/tech-arch1tect/authd/services/user"
)

const (
	bearerScheme = "bearerAuth"
	cookieScheme = "refreshCookie"
	tagAuth      = "Authentication"
	tagAccount   = "Account"
)

// NewDocument describes every route mounted by RegisterRoutes.
func NewDocument(appName, version, cookieName string) *openapi.OpenAPI {
	api := openapi.New(appName, version).
		Description("Credential and session management: registration, login, refresh token rotation, logout and password recovery.").
		Tag(tagAuth, "Sessions and tokens").
		Tag(tagAccount, "Profile and password").
		BearerAuth(bearerScheme, "Access token issued by login or refresh").
		CookieAuth(cookieScheme, cookieName, "HTTP-only refresh token cookie")

	api.Document(http.MethodGet, "/health").
		Summary("Health check").
		OperationID("health").
		Response(http.StatusOK, healthResponse{}, "Service is up").
		NoSecurity().
		Build()

	api.Document(http.MethodPost, "/auth/register").
		Summary("Register an account").
		OperationID("register").
		Tags(tagAccount).
		Body(registerRequest{}, "New account credentials").
		Response(http.StatusOK, user.User{}, "Created profile").
		Response(http.StatusConflict, errorResponse{}, "Email already registered").
		Response(http.StatusUnprocessableEntity, errorResponse{}, "Invalid email or password length").
		NoSecurity().
		Build()

	api.Document(http.MethodPost, "/auth/login").
		Summary("Log in").
		OperationID("login").
		Description("Opens a session and sets the refresh token cookie. The refresh token is echoed in the body only outside production.").
		Tags(tagAuth).
		Body(loginRequest{}, "Credentials and optional device id").
		Response(http.StatusOK, tokenResponse{}, "Token pair").
		Response(http.StatusUnauthorized, errorResponse{}, "Invalid credentials").
		Response(http.StatusTooManyRequests, errorResponse{}, "Too many attempts").
		NoSecurity().
		Build()

	api.Document(http.MethodPost, "/auth/refresh-access-token").
		Summary("Rotate a refresh token").
		OperationID("refreshAccessToken").
		Description("Consumes the presented refresh token and issues a new pair in the same session. The body token wins over the cookie.").
		Tags(tagAuth).
		BodyOptional(refreshRequest{}, "Refresh token, when not sent as a cookie").
		CookieParam(cookieName, "Refresh token").
		Response(http.StatusOK, tokenResponse{}, "New token pair").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing, invalid, wrong type, revoked or unknown token").
		Security(cookieScheme).
		Build()

	api.Document(http.MethodPost, "/auth/logout").
		Summary("Log out of this session").
		OperationID("logout").
		Tags(tagAuth).
		BodyOptional(refreshRequest{}, "Refresh token, when not sent as a cookie").
		CookieParam(cookieName, "Refresh token").
		Response(http.StatusOK, statusResponse{}, "Always succeeds").
		Security(cookieScheme).
		Build()

	api.Document(http.MethodPost, "/auth/logout-all").
		Summary("Log out of every session").
		OperationID("logoutAll").
		Tags(tagAuth).
		Response(http.StatusOK, logoutAllResponse{}, "Number of sessions revoked").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing or invalid access token").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodGet, "/auth/verify").
		Summary("Verify an access token").
		OperationID("verify").
		Tags(tagAuth).
		Response(http.StatusOK, verifyResponse{}, "Token belongs to an active user").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing or invalid access token").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodGet, "/auth/sessions").
		Summary("List live sessions").
		OperationID("listSessions").
		Tags(tagAuth).
		Response(http.StatusOK, map[string][]auth.Session{}, "Live sessions of the caller").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing or invalid access token").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodGet, "/auth/view-profile").
		Summary("Get my profile").
		OperationID("viewProfile").
		Tags(tagAccount).
		Response(http.StatusOK, user.User{}, "Profile").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing or invalid access token").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodPatch, "/auth/edit-profile").
		Summary("Edit my profile").
		OperationID("editProfile").
		Tags(tagAccount).
		Body(editProfileRequest{}, "Fields to change. Unknown fields are rejected.").
		Response(http.StatusOK, user.User{}, "Updated profile").
		Response(http.StatusUnauthorized, errorResponse{}, "Missing or invalid access token").
		Response(http.StatusUnprocessableEntity, errorResponse{}, "Unknown field or value too long").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodPost, "/auth/change-password").
		Summary("Change my password").
		OperationID("changePassword").
		Description("Revokes every session of the caller.").
		Tags(tagAccount).
		Body(changePasswordRequest{}, "Current and new password").
		Response(http.StatusOK, statusResponse{}, "Password changed").
		Response(http.StatusUnauthorized, errorResponse{}, "Wrong current password or invalid access token").
		Response(http.StatusUnprocessableEntity, errorResponse{}, "New password length").
		Security(bearerScheme).
		Build()

	api.Document(http.MethodPost, "/auth/forgot-password").
		Summary("Request a password reset").
		OperationID("forgotPassword").
		Description("Answers identically for registered and unknown emails. Production mails the reset link; elsewhere the token is returned.").
		Tags(tagAccount).
		Body(forgotPasswordRequest{}, "Account email").
		Response(http.StatusOK, forgotPasswordResponse{}, "Accepted").
		Response(http.StatusTooManyRequests, errorResponse{}, "Too many attempts").
		NoSecurity().
		Build()

	api.Document(http.MethodPost, "/auth/reset-password").
		Summary("Reset a password").
		OperationID("resetPassword").
		Description("Consumes the reset token and revokes every session of the account.").
		Tags(tagAccount).
		Body(resetPasswordRequest{}, "Reset token and new password").
		Response(http.StatusOK, statusResponse{}, "Password reset").
		Response(http.StatusUnauthorized, errorResponse{}, "Invalid, used or expired token").
		Response(http.StatusUnprocessableEntity, errorResponse{}, "New password length").
		Response(http.StatusTooManyRequests, errorResponse{}, "Too many attempts").
		NoSecurity().
		Build()

	return api
}
