package authhttp

type registerRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password" doc:"At least 4 characters, at most 72 bytes"`
}

type loginRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty" doc:"Stable per-device session identifier, at most 64 bytes"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty" doc:"Falls back to the refresh cookie when absent"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" doc:"At least 8 characters, at most 72 bytes"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" example:"user@example.com"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password" doc:"At least 8 characters, at most 72 bytes"`
}

type editProfileRequest struct {
	FullName *string `json:"full_name,omitempty" doc:"At most 255 bytes"`
	Phone    *string `json:"phone,omitempty" doc:"At most 32 bytes"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type" example:"bearer"`
	RefreshToken string `json:"refresh_token,omitempty" doc:"Only outside production"`
}

type statusResponse struct {
	Status string `json:"status" example:"ok"`
}

type logoutAllResponse struct {
	Status  string `json:"status" example:"ok"`
	Revoked int64  `json:"revoked"`
}

type forgotPasswordResponse struct {
	Status     string `json:"status" example:"ok"`
	ResetToken string `json:"reset_token,omitempty" doc:"Only outside production"`
}

type verifyResponse struct {
	Active bool   `json:"active"`
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

type healthResponse struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service"`
}

type errorResponse struct {
	Error string `json:"error"`
}
