// Package auth orchestrates registration, login, refresh rotation, logout and password
// recovery on top of the user store and the session and reset ledgers.
//
// Every operation that revokes or creates sessions for a user first locks that user's row
// and only then touches refresh_tokens, so revoke-all and session creation for the same
// user serialise and can never deadlock against each other.
package auth

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/authd/config"
	jwtservice "github.com/tech-arch1tect/authd/services/jwt"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/tech-arch1tect/authd/services/password"
	"github.com/tech-arch1tect/authd/services/passwordreset"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/tokenhash"
	"github.com/tech-arch1tect/authd/services/user"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxDeviceIDLength matches the session_id column.
const MaxDeviceIDLength = 64

// Mailer delivers password reset links in production.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// TokenPair is the result of a login or a rotation. RefreshToken is the raw secret; it is
// never persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// Session is the read-only view of a live session record.
type Session struct {
	SessionID  string     `json:"session_id"`
	Device     string     `json:"device"`
	IPAddress  string     `json:"ip_address"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	users    *user.Store
	sessions *refreshtoken.Service
	resets   *passwordreset.Service
	tokens   *jwtservice.Service
	hasher   *password.Hasher
	mailer   Mailer
	tracer   trace.Tracer
	logger   *logging.Service
}

func NewService(
	cfg *config.Config,
	db *gorm.DB,
	users *user.Store,
	sessions *refreshtoken.Service,
	resets *passwordreset.Service,
	tokens *jwtservice.Service,
	hasher *password.Hasher,
	tracer trace.Tracer,
	logger *logging.Service,
) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		cfg:      cfg,
		db:       db,
		users:    users,
		sessions: sessions,
		resets:   resets,
		tokens:   tokens,
		hasher:   hasher,
		tracer:   tracer,
		logger:   logger,
	}
}

func (s *Service) SetMailer(mailer Mailer) {
	s.mailer = mailer
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func userAttr(id uint) attribute.KeyValue {
	return attribute.Int64("user.id", int64(id))
}

func validationError(err error) error {
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}

func validateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	addr, err := netmail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, email, plaintext string) (u *user.User, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := password.Validate(plaintext, s.cfg.Auth.MinPasswordLength); err != nil {
		return nil, validationError(err)
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.Info("registration rejected: email taken")
		return nil, ErrEmailTaken
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	u, err = s.users.Create(ctx, email, digest)
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	span.SetAttributes(userAttr(u.ID))
	return u, nil
}

// Login authenticates by email and password and opens a session. deviceID, when given,
// becomes the session identifier so a client can keep one stable session per device.
func (s *Service) Login(ctx context.Context, email, plaintext, deviceID string, telemetry refreshtoken.Telemetry) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(deviceID) > MaxDeviceIDLength {
		return nil, fmt.Errorf("%w: device_id must be at most %d bytes", ErrValidation, MaxDeviceIDLength)
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			return nil, err
		}
		s.hasher.VerifyDummy(plaintext)
		s.logger.Info("login failed")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(plaintext, u.PasswordHash) || !u.IsActive {
		s.logger.Info("login failed", zap.Uint("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(userAttr(u.ID))

	sessionID := deviceID
	if sessionID == "" {
		sessionID = tokenhash.GenerateSessionID()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).LockByID(ctx, u.ID); err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, s.sessions.WithTx(tx), u.ID, sessionID, telemetry)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		zap.Uint("user_id", u.ID),
		zap.String("session_id", sessionID))

	return pair, nil
}

// Refresh rotates a refresh token. The presented record is consumed before anything new is
// issued, so of two concurrent calls with the same token exactly one succeeds.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, telemetry refreshtoken.Telemetry) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Refresh")
	defer func() { endSpan(span, err) }()

	claims, err := s.tokens.Decode(rawRefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != jwtservice.TypeRefresh {
		s.logger.Warn("refresh attempted with non-refresh token", zap.Uint("user_id", claims.UserID))
		return nil, ErrWrongTokenType
	}

	digest := tokenhash.Digest(rawRefreshToken)
	record, err := s.sessions.FindByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, refreshtoken.ErrRefreshTokenNotFound) {
			return nil, ErrRevokedOrUnknownToken
		}
		return nil, err
	}
	if !record.IsLive(s.sessions.Now()) {
		s.logger.Warn("revoked or expired refresh token presented",
			zap.Uint("user_id", record.UserID),
			zap.String("session_id", record.SessionID))
		return nil, ErrRevokedOrUnknownToken
	}
	if record.UserID != claims.UserID {
		s.logger.Error("refresh token subject does not match session owner",
			zap.Uint("user_id", record.UserID),
			zap.Uint("subject", claims.UserID))
		return nil, ErrRevokedOrUnknownToken
	}
	span.SetAttributes(userAttr(record.UserID), attribute.String("session.id", record.SessionID))

	// A rejected rotation still commits the consumption of the presented token.
	var rejected error
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)

		u, err := s.users.WithTx(tx).LockByID(ctx, record.UserID)
		if err != nil && !errors.Is(err, user.ErrUserNotFound) {
			return err
		}

		if err := sessions.Consume(ctx, record); err != nil {
			if errors.Is(err, refreshtoken.ErrRefreshTokenConsumed) {
				rejected = ErrRevokedOrUnknownToken
				return nil
			}
			return err
		}

		if u == nil || !u.IsActive {
			rejected = ErrInactiveOrMissingUser
			return nil
		}

		pair, err = s.issuePair(ctx, sessions, u.ID, record.SessionID, telemetry)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}

	s.logger.Info("refresh token rotated",
		zap.Uint("user_id", record.UserID),
		zap.String("session_id", record.SessionID))

	return pair, nil
}

func (s *Service) issuePair(ctx context.Context, sessions *refreshtoken.Service, userID uint, sessionID string, telemetry refreshtoken.Telemetry) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	refresh, expiresAt, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	if _, err := sessions.Create(ctx, userID, sessionID, tokenhash.Digest(refresh), expiresAt, telemetry); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
		SessionID:        sessionID,
	}, nil
}

// Logout revokes the session behind rawRefreshToken when it is live. Missing, unknown and
// already revoked tokens are not errors.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	if rawRefreshToken == "" {
		return nil
	}

	record, err := s.sessions.FindByDigest(ctx, tokenhash.Digest(rawRefreshToken))
	if err != nil {
		if errors.Is(err, refreshtoken.ErrRefreshTokenNotFound) {
			return nil
		}
		return err
	}
	if !record.IsLive(s.sessions.Now()) {
		return nil
	}

	span.SetAttributes(userAttr(record.UserID))
	return s.sessions.Revoke(ctx, record)
}

// LogoutAll revokes every live session of the user and returns how many were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID uint) (revoked int64, err error) {
	ctx, span := s.startSpan(ctx, "LogoutAll", userAttr(userID))
	defer func() { endSpan(span, err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.WithTx(tx).LockByID(ctx, userID); err != nil {
			return err
		}
		revoked, err = s.sessions.WithTx(tx).RevokeAllForUser(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return 0, ErrInactiveOrMissingUser
		}
		return 0, err
	}

	span.SetAttributes(attribute.Int64("sessions.revoked", revoked))
	return revoked, nil
}

func (s *Service) ViewProfile(ctx context.Context, userID uint) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInactiveOrMissingUser
		}
		return nil, err
	}
	return u, nil
}

// EditProfile changes profile fields only. Credentials and sessions are untouched.
func (s *Service) EditProfile(ctx context.Context, userID uint, update user.ProfileUpdate) (u *user.User, err error) {
	ctx, span := s.startSpan(ctx, "EditProfile", userAttr(userID))
	defer func() { endSpan(span, err) }()

	if update.FullName != nil && len(*update.FullName) > 255 {
		return nil, fmt.Errorf("%w: full_name must be at most 255 bytes", ErrValidation)
	}
	if update.Phone != nil && len(*update.Phone) > 32 {
		return nil, fmt.Errorf("%w: phone must be at most 32 bytes", ErrValidation)
	}

	u, err = s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInactiveOrMissingUser
		}
		return nil, err
	}
	return u, nil
}

// ChangePassword replaces the password and revokes every session of the user, including
// the one the request came from.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "ChangePassword", userAttr(userID))
	defer func() { endSpan(span, err) }()

	if err := password.Validate(newPassword, s.cfg.Auth.MinNewPasswordLength); err != nil {
		return validationError(err)
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrInactiveOrMissingUser
		}
		return err
	}

	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		s.logger.Info("password change rejected", zap.Uint("user_id", userID))
		return ErrInvalidCredentials
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	revoked, err := s.replacePassword(ctx, userID, digest, nil)
	if err != nil {
		return err
	}

	s.logger.Info("password changed",
		zap.Uint("user_id", userID),
		zap.Int64("sessions_revoked", revoked))

	return nil
}

// replacePassword stores the new digest and revokes all sessions in one transaction.
// before runs first inside the same transaction.
func (s *Service) replacePassword(ctx context.Context, userID uint, digest string, before func(tx *gorm.DB) error) (int64, error) {
	var revoked int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if before != nil {
			if err := before(tx); err != nil {
				return err
			}
		}

		users := s.users.WithTx(tx)
		if _, err := users.LockByID(ctx, userID); err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, userID, digest); err != nil {
			return err
		}

		var err error
		revoked, err = s.sessions.WithTx(tx).RevokeAllForUser(ctx, userID)
		return err
	})
	if errors.Is(err, user.ErrUserNotFound) {
		return 0, ErrInactiveOrMissingUser
	}
	return revoked, err
}

// ForgotPassword starts a reset for email. It reports success whether or not the account
// exists. Outside production the raw reset secret is returned instead of being mailed; in
// production the returned secret is always empty.
func (s *Service) ForgotPassword(ctx context.Context, email string) (resetToken string, err error) {
	ctx, span := s.startSpan(ctx, "ForgotPassword")
	defer func() { endSpan(span, err) }()

	if err := validateEmail(email); err != nil {
		return "", err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return "", nil
		}
		return "", err
	}
	span.SetAttributes(userAttr(u.ID))

	raw, err := tokenhash.GenerateSecret(s.cfg.Auth.PasswordResetTokenLength)
	if err != nil {
		return "", err
	}

	expiresAt := s.resets.Now().Add(s.cfg.Auth.PasswordResetExpiry)
	if _, err := s.resets.Create(ctx, u.ID, tokenhash.Digest(raw), expiresAt); err != nil {
		return "", err
	}

	if !s.cfg.IsProduction() {
		return raw, nil
	}

	s.deliverResetLink(ctx, u, raw)
	return "", nil
}

// deliverResetLink never fails the request. A delivery error would otherwise reveal that
// the account exists.
func (s *Service) deliverResetLink(ctx context.Context, u *user.User, raw string) {
	if s.mailer == nil {
		s.logger.Error("password reset email not sent: mail is not configured", zap.Uint("user_id", u.ID))
		return
	}

	link, err := s.resetURL(raw)
	if err != nil {
		s.logger.Error("password reset email not sent: invalid frontend reset url", zap.Error(err))
		return
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		s.logger.Error("failed to send password reset email", zap.Uint("user_id", u.ID), zap.Error(err))
		return
	}

	s.logger.Info("password reset email sent", zap.Uint("user_id", u.ID))
}

func (s *Service) resetURL(raw string) (string, error) {
	u, err := url.Parse(s.cfg.App.FrontendResetURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", raw)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResetPassword redeems a reset secret. The record is marked used, the password replaced
// and every session revoked in one transaction.
func (s *Service) ResetPassword(ctx context.Context, rawResetToken, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	if err := password.Validate(newPassword, s.cfg.Auth.MinNewPasswordLength); err != nil {
		return validationError(err)
	}
	if rawResetToken == "" {
		return ErrInvalidToken
	}

	record, err := s.resets.FindByDigest(ctx, tokenhash.Digest(rawResetToken))
	if err != nil {
		if errors.Is(err, passwordreset.ErrResetTokenNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	span.SetAttributes(userAttr(record.UserID))

	if record.IsUsed() {
		s.logger.Warn("used password reset token presented", zap.Uint("user_id", record.UserID))
		return ErrTokenUsed
	}
	if record.IsExpired(s.resets.Now()) {
		s.logger.Info("expired password reset token presented", zap.Uint("user_id", record.UserID))
		return ErrTokenExpired
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	revoked, err := s.replacePassword(ctx, record.UserID, digest, func(tx *gorm.DB) error {
		return s.resets.WithTx(tx).MarkUsed(ctx, record)
	})
	if err != nil {
		if errors.Is(err, passwordreset.ErrResetTokenUsed) {
			return ErrTokenUsed
		}
		return err
	}

	s.logger.Info("password reset completed",
		zap.Uint("user_id", record.UserID),
		zap.Int64("sessions_revoked", revoked))

	return nil
}

// Authenticate resolves an access token to its active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := s.tokens.Decode(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != jwtservice.TypeAccess {
		return nil, ErrWrongTokenType
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInactiveOrMissingUser
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactiveOrMissingUser
	}
	return u, nil
}

// ListSessions returns the user's live sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID uint) ([]Session, error) {
	records, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, Session{
			SessionID:  r.SessionID,
			Device:     r.DeviceInfo,
			IPAddress:  r.IPAddress,
			CreatedAt:  r.CreatedAt,
			LastUsedAt: r.LastUsedAt,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return sessions, nil
}
