package passwordreset

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
	ErrResetTokenNotFound = errors.New("password reset token not found")
	ErrResetTokenUsed     = errors.New("password reset token has already been used")
	ErrDuplicateDigest    = errors.New("password reset token digest collision")
)

// Service is the reset ledger. It does not revoke sessions; the caller of a successful
// reset does that.
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

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, logger: s.logger, now: s.now}
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Create(ctx context.Context, userID uint, digest string, expiresAt time.Time) (*PasswordResetToken, error) {
	record := &PasswordResetToken{
		UserID:    userID,
		TokenHash: digest,
		ExpiresAt: expiresAt.UTC(),
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateDigest
		}
		s.logger.Error("failed to store password reset token", zap.Uint("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to create password reset token: %w", err)
	}

	s.logger.Info("password reset token created",
		zap.Uint("user_id", userID),
		zap.Time("expires_at", record.ExpiresAt))

	return record, nil
}

func (s *Service) FindByDigest(ctx context.Context, digest string) (*PasswordResetToken, error) {
	var record PasswordResetToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", digest).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("unknown password reset token presented", logging.Digest(digest))
			return nil, ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

// MarkUsed stamps the record as used. It succeeds for exactly one caller; a record that
// is already used yields ErrResetTokenUsed.
func (s *Service) MarkUsed(ctx context.Context, record *PasswordResetToken) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", record.ID).
		Update("used_at", now)
	if result.Error != nil {
		return fmt.Errorf("failed to mark password reset token used: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrResetTokenUsed
	}

	record.UsedAt = &now
	s.logger.Info("password reset token used", zap.Uint("user_id", record.UserID), zap.Uint("token_id", record.ID))
	return nil
}
