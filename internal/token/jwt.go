package token

import (
	"errors"
	"fmt"
	"time"

	"chat-auth-service/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers bad signatures, expired tokens and malformed input alike.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the identity bound to a session token.
type Claims struct {
	AccountID   string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 session tokens. It keeps no record of
// what it has issued, so tokens cannot be revoked before they expire.
type Service struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

func NewService(cfg config.JWTConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token service: secret is required")
	}
	if cfg.ExpiresIn <= 0 {
		return nil, errors.New("token service: expiry must be positive")
	}
	return &Service{
		secret: []byte(cfg.Secret),
		expiry: cfg.ExpiresIn,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source; used by tests to mint expired tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) Expiry() time.Duration {
	return s.expiry
}

func (s *Service) Issue(accountID, phoneNumber string) (string, error) {
	if accountID == "" || phoneNumber == "" {
		return "", errors.New("token service: account id and phone number are required")
	}

	now := s.now()
	claims := Claims{
		AccountID:   accountID,
		PhoneNumber: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
