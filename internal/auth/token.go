// Package auth issues and validates the bearer tokens that scope API
// access to a single measurement session.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the value of the typ claim on session tokens.
const TokenType = "session"

// SessionTokenExpiry bounds how long a session token stays valid. It is
// deliberately longer than the default session TTL so the token never
// expires before the session it guards.
const SessionTokenExpiry = 24 * time.Hour

// DefaultLeeway for clock skew during validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptySessionID is returned when a token is requested without a session.
var ErrEmptySessionID = errors.New("session ID cannot be empty")

// Claims are the JWT claims carried by a session token. Subject holds
// the session ID.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenService signs and validates session tokens.
// Supports dual-key rotation: tokens are signed with currentSecret,
// but can be validated with either currentSecret or previousSecret.
type TokenService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewTokenService creates a TokenService signing with the given secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
	}
}

// NewTokenServiceWithRotation creates a TokenService with dual-key
// support for zero-downtime secret rotation. Pass an empty previous
// secret when no rotation is in progress.
func NewTokenServiceWithRotation(currentSecret, previousSecret string) *TokenService {
	svc := &TokenService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// Generate creates a token scoped to the given session.
func (s *TokenService) Generate(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenExpiry)),
		},
		Type: TokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// Validate parses a token and returns its claims. Tries currentSecret
// first, then previousSecret if one is configured.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims, err := s.parseWith(tokenString, s.currentSecret)
	if err == nil {
		return claims, nil
	}

	if s.previousSecret != nil {
		if claims, prevErr := s.parseWith(tokenString, s.previousSecret); prevErr == nil {
			return claims, nil
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (s *TokenService) parseWith(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
