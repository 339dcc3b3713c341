package refreshtoken

import (
	"time"
)

// RefreshToken is one link of a session lineage. SessionID is stable across rotations,
// TokenHash changes with every rotation.
type RefreshToken struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"user_id" gorm:"not null;index"`
	SessionID  string     `json:"session_id" gorm:"size:64;not null;index"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UserAgent  string     `json:"user_agent" gorm:"size:255;not null;default:''"`
	IPAddress  string     `json:"ip_address" gorm:"size:64;not null;default:''"`
	DeviceInfo string     `json:"device_info" gorm:"size:128;not null;default:''"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// IsLive reports whether the record is neither revoked nor expired at now.
func (t *RefreshToken) IsLive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Telemetry is the client information recorded with a session.
type Telemetry struct {
	IPAddress string
	UserAgent string
}
