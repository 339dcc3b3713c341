package refreshtoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenConsumed means the record was revoked between lookup and consumption.
	ErrRefreshTokenConsumed = errors.New("refresh token already consumed")
	ErrDuplicateDigest      = errors.New("refresh token digest collision")
)

// Service is the session ledger. All refresh token mutation goes through it.
type Service struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a ledger bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, logger: s.logger, now: s.now}
}

func (s *Service) Create(ctx context.Context, userID uint, sessionID, digest string, expiresAt time.Time, telemetry Telemetry) (*RefreshToken, error) {
	record := &RefreshToken{
		UserID:     userID,
		SessionID:  sessionID,
		TokenHash:  digest,
		ExpiresAt:  expiresAt.UTC(),
		UserAgent:  truncate(telemetry.UserAgent, 255),
		IPAddress:  truncate(telemetry.IPAddress, 64),
		DeviceInfo: DeviceLabel(telemetry.UserAgent),
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Error("refresh token digest collision", logging.Digest(digest))
			return nil, ErrDuplicateDigest
		}
		s.logger.Error("failed to store refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.logger.Info("refresh token stored",
		zap.Uint("user_id", userID),
		zap.Uint("token_id", record.ID),
		zap.String("session_id", sessionID),
		zap.Time("expires_at", record.ExpiresAt))

	return record, nil
}

// FindByDigest returns the record regardless of its state. Callers decide liveness.
func (s *Service) FindByDigest(ctx context.Context, digest string) (*RefreshToken, error) {
	var record RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", digest).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("refresh token not found", logging.Digest(digest))
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

// Revoke sets revoked and last-used timestamps. Revoking a revoked record only moves
// the timestamps.
func (s *Service) Revoke(ctx context.Context, record *RefreshToken) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{"revoked_at": now, "last_used_at": now})
	if result.Error != nil {
		s.logger.Error("failed to revoke refresh token", zap.Uint("token_id", record.ID), zap.Error(result.Error))
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}

	record.RevokedAt = &now
	record.LastUsedAt = &now

	s.logger.Info("refresh token revoked",
		zap.Uint("token_id", record.ID),
		zap.Uint("user_id", record.UserID))

	return nil
}

// Consume revokes the record only if it is still unrevoked. Exactly one caller can
// consume a record; every other caller gets ErrRefreshTokenConsumed.
func (s *Service) Consume(ctx context.Context, record *RefreshToken) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", record.ID).
		Updates(map[string]any{"revoked_at": now, "last_used_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to consume refresh token: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		s.logger.Warn("refresh token consumed concurrently",
			zap.Uint("token_id", record.ID),
			zap.Uint("user_id", record.UserID))
		return ErrRefreshTokenConsumed
	}

	record.RevokedAt = &now
	record.LastUsedAt = &now
	return nil
}

// RevokeAllForUser revokes every live record of the user in one statement and returns
// how many were revoked.
func (s *Service) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Updates(map[string]any{"revoked_at": now, "last_used_at": now})
	if result.Error != nil {
		s.logger.Error("failed to revoke user refresh tokens", zap.Uint("user_id", userID), zap.Error(result.Error))
		return 0, fmt.Errorf("failed to revoke all user refresh tokens: %w", result.Error)
	}

	s.logger.Info("all user refresh tokens revoked",
		zap.Uint("user_id", userID),
		zap.Int64("count", result.RowsAffected))

	return result.RowsAffected, nil
}

// ListActiveForUser returns the live records of the user, newest first.
func (s *Service) ListActiveForUser(ctx context.Context, userID uint) ([]RefreshToken, error) {
	var records []RefreshToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return records, nil
}

func (s *Service) Now() time.Time {
	return s.now()
}
