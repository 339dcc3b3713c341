package password

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the number of bytes bcrypt takes into account.
const MaxLength = 72

var (
	ErrHashingFailed = errors.New("failed to hash password")
	ErrTooShort      = errors.New("password is too short")
	ErrTooLong       = errors.New("password is too long")
)

type Hasher struct {
	cost   int
	logger *logging.Service

	dummyOnce sync.Once
	dummy     []byte
}

func NewHasher(cost int, logger *logging.Service) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost, logger: logger}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxLength {
		return "", ErrTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		h.logger.Error("password hashing failed", zap.Error(err))
		return "", ErrHashingFailed
	}

	return string(hash), nil
}

// Verify reports whether plaintext matches digest. A malformed digest never matches.
func (h *Hasher) Verify(plaintext, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		h.logger.Warn("stored password digest is unusable", zap.Error(err))
	}
	return false
}

// VerifyDummy burns the same CPU as Verify against a throwaway digest. Callers use it when
// the account does not exist so response timing does not reveal registered emails.
func (h *Hasher) VerifyDummy(plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("authd-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}

// Validate enforces the length policy: at least minLength characters and at most MaxLength bytes.
func Validate(plaintext string, minLength int) error {
	if len([]rune(plaintext)) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrTooShort, minLength)
	}
	if len(plaintext) > MaxLength {
		return fmt.Errorf("%w: must be at most %d bytes", ErrTooLong, MaxLength)
	}
	return nil
}
