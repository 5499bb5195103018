// Package auth turns bearer tokens into callers and decides which roles may
// reach which routes.
//
// Tokens are HS256 JWTs. The subject is the caller's stable identifier; for
// drivers it is the value bookings store as the assigned driver's stable id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/limoline/dispatch/internal/config"
	"github.com/limoline/dispatch/internal/domain/entities"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("token carries an unknown role")
	ErrNoSubject    = errors.New("token has no subject")
)

// Claims is the token payload.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Caller converts validated claims to the identity the services work with.
func (c *Claims) Caller() (entities.Caller, error) {
	if c.Subject == "" {
		return entities.Caller{}, ErrNoSubject
	}
	role, ok := entities.ParseRole(c.Role)
	if !ok {
		return entities.Caller{}, fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
	}
	return entities.Caller{ID: c.Subject, Role: role, Email: c.Email, Name: c.Name}, nil
}

// JWTManager signs and validates tokens with a shared secret.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager creates a JWTManager from the auth settings. An empty secret
// is rejected; config validation enforces the minimum length.
func NewJWTManager(cfg config.AuthConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GenerateToken issues a token for caller valid for the configured TTL.
func (m *JWTManager) GenerateToken(caller entities.Caller) (string, error) {
	return m.GenerateTokenWithTTL(caller, m.ttl)
}

// GenerateTokenWithTTL issues a token with an explicit lifetime.
func (m *JWTManager) GenerateTokenWithTTL(caller entities.Caller, ttl time.Duration) (string, error) {
	if caller.ID == "" {
		return "", ErrNoSubject
	}
	if _, ok := entities.ParseRole(string(caller.Role)); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, caller.Role)
	}

	now := m.now()
	claims := &Claims{
		Role:  string(caller.Role),
		Email: caller.Email,
		Name:  caller.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, expiry and issuer.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate validates tokenString and returns its caller.
func (m *JWTManager) Authenticate(tokenString string) (entities.Caller, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return entities.Caller{}, err
	}
	return claims.Caller()
}
