package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"go.uber.org/zap"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// ErrInvalidToken covers every decode failure. The reason-specific errors wrap it so callers
// can match on ErrInvalidToken alone while logs keep the detail.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)
)

type Claims struct {
	UserID    uint      `json:"user_id"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

type Service struct {
	secret        []byte
	method        jwt.SigningMethod
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	logger        *logging.Service
	now           func() time.Time
}

func NewService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	method := jwt.GetSigningMethod(cfg.JWT.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported JWT algorithm %q", cfg.JWT.Algorithm)
	}

	return &Service{
		secret:        []byte(cfg.JWT.SecretKey),
		method:        method,
		issuer:        cfg.JWT.Issuer,
		accessExpiry:  cfg.JWT.AccessExpiry,
		refreshExpiry: cfg.JWT.RefreshExpiry,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *Service) AccessExpiry() time.Duration {
	return s.accessExpiry
}

func (s *Service) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

func (s *Service) IssueAccess(userID uint) (string, error) {
	token, _, err := s.issue(userID, TypeAccess, s.accessExpiry)
	return token, err
}

// IssueRefresh returns the signed token together with its expiry so the caller can persist
// the session record without decoding the token again.
func (s *Service) IssueRefresh(userID uint) (string, time.Time, error) {
	return s.issue(userID, TypeRefresh, s.refreshExpiry)
}

func (s *Service) issue(userID uint, tokenType TokenType, lifetime time.Duration) (string, time.Time, error) {
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(lifetime)

	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign token", zap.String("type", string(tokenType)), zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return signed, expiresAt, nil
}

// Decode verifies signature, algorithm, issuer, audience and expiry. It does not consult
// any revocation state.
func (s *Service) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		s.logger.Debug("token validation failed", zap.Error(err))

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	if !token.Valid || claims.UserID == 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	switch claims.TokenType {
	case TypeAccess, TypeRefresh:
	default:
		return nil, ErrInvalidToken
	}

	return claims, nil
}
