// Package auth issues and validates the gateway's bearer tokens. Widget
// clients start as anonymous guests; a guest token binds a client to its
// sessions without any signup step.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// ErrAuthDisabled is returned when no signing secret is configured.
var ErrAuthDisabled = errors.New("auth disabled: no secret configured")

// ErrInvalidToken is returned for malformed, forged, or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// JWTService signs and verifies HS256 tokens.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a token helper. expiry <= 0 issues non-expiring
// tokens.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

// Claims is the token payload.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Guest bool   `json:"guest,omitempty"`
	jwt.RegisteredClaims
}

// IssueGuest mints a fresh guest identity and its signed token.
func (s *JWTService) IssueGuest() (*models.User, string, error) {
	user := &models.User{ID: "guest_" + uuid.NewString(), Guest: true}
	token, err := s.Generate(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Generate issues a signed token for the given user.
func (s *JWTService) Generate(user *models.User) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", errors.New("user id required")
	}

	claims := Claims{
		Name:  strings.TrimSpace(user.Name),
		Guest: user.Guest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
		},
	}
	if s.expiry <= 0 {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token and returns the user embedded in it.
func (s *JWTService) Validate(token string) (*models.User, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &models.User{
		ID:    claims.Subject,
		Name:  strings.TrimSpace(claims.Name),
		Guest: claims.Guest,
	}, nil
}
