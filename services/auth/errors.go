package auth

import "errors"

// Messages are deliberately generic. Credential and enumeration sensitive failures must not
// tell the caller which check failed.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailTaken            = errors.New("email already registered")
	ErrInvalidToken          = errors.New("invalid token")
	ErrWrongTokenType        = errors.New("invalid token type")
	ErrRevokedOrUnknownToken = errors.New("refresh token revoked or unknown")
	ErrInactiveOrMissingUser = errors.New("user not found or inactive")
	ErrTokenUsed             = errors.New("token already used")
	ErrTokenExpired          = errors.New("token expired")
	ErrValidation            = errors.New("validation failed")
)

// IsUnauthorized reports whether err belongs to the part of the taxonomy that denies the
// caller's credentials or tokens.
func IsUnauthorized(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrInvalidToken,
		ErrWrongTokenType,
		ErrRevokedOrUnknownToken,
		ErrInactiveOrMissingUser,
		ErrTokenUsed,
		ErrTokenExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
