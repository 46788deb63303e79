// Package auth validates the two token kinds Archon accepts: user session
// tokens on the public API and scheduler-issued internal tokens on the
// internal execution endpoint. Both are HS256 over a shared secret.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/archonhq/archon/errors"
)

// Claims identifies an authenticated user session
type Claims struct {
	UserID    string
	Email     string
	SessionID string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sid,omitempty"`
}

// SessionManager creates and validates user session tokens
type SessionManager struct {
	secret      []byte
	tokenExpiry time.Duration
}

func NewSessionManager(secret string, tokenExpiry time.Duration) (*SessionManager, error) {
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if tokenExpiry <= 0 {
		tokenExpiry = 15 * time.Minute
	}
	return &SessionManager{secret: []byte(secret), tokenExpiry: tokenExpiry}, nil
}

// GenerateToken creates a session token for the given claims
func (m *SessionManager) GenerateToken(claims *Claims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "archon",
		},
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session token")
	}
	return signed, nil
}

// ValidateToken parses and validates a session token
func (m *SessionManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid session token")
	}
	if claims.UserID == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "session token has no user id")
	}
	return &Claims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}
