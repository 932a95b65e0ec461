package services

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	situation_errors "situation-room/pkg/errors"
)

// AccessClaims identify the caller: sub is the application user id and tid
// the tenant.
type AccessClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// AuthService verifies the bearer tokens issued by the identity provider
// that fronts this service.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{jwtSecret: []byte(secret)}
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, situation_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, situation_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, situation_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, situation_errors.ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TenantID) == "" {
		return AccessClaims{}, situation_errors.ErrUnauthorized
	}

	return *claims, nil
}

// IssueAccessToken signs a token for userID in tenantID. Used by local
// tooling and tests; production tokens come from the identity provider.
func (s *AuthService) IssueAccessToken(userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
