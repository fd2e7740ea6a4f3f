package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

type Service struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewService(secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{Secret: secret, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
}

func NewJTI() string { return uuid.NewString() }

func (s *Service) IssueAccess(userID string) (string, *Claims, error) {
	return s.issue(userID, TypeAccess, s.AccessTTL)
}

func (s *Service) IssueRefresh(userID string) (string, *Claims, error) {
	return s.issue(userID, TypeRefresh, s.RefreshTTL)
}

func (s *Service) issue(userID, tokenType string, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        NewJTI(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Verify checks the signature and the type claim. Expiry is reported as
// ErrExpiredToken, every other failure as ErrInvalidToken.
func (s *Service) Verify(tokenStr, expectedType string) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return s.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
