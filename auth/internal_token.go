package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/archonhq/archon/errors"
)

// InternalClaims identifies a scheduler-triggered internal request acting on
// behalf of a user.
type InternalClaims struct {
	UserID     string
	ScheduleID string
}

type internalTokenClaims struct {
	jwt.RegisteredClaims
	UserID     string `json:"uid"`
	ScheduleID string `json:"schedule_id,omitempty"`
}

// InternalTokenManager validates bearer tokens on the internal execution
// endpoint. Tokens must carry the expected issuer and audience so a leaked
// session secret cannot be replayed against internal routes.
type InternalTokenManager struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
}

func NewInternalTokenManager(secret, issuer, audience string) (*InternalTokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	return &InternalTokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		expiry:   5 * time.Minute,
	}, nil
}

// GenerateToken mints a short-lived internal token. Used by the scheduler
// client and by tests.
func (m *InternalTokenManager) GenerateToken(claims *InternalClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, internalTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
		},
		UserID:     claims.UserID,
		ScheduleID: claims.ScheduleID,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign internal token")
	}
	return signed, nil
}

// ValidateToken validates an internal bearer token and returns its claims
func (m *InternalTokenManager) ValidateToken(tokenString string) (*InternalClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &internalTokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}
	claims, ok := token.Claims.(*internalTokenClaims)
	if !ok || !token.Valid {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid internal token")
	}
	return &InternalClaims{UserID: claims.UserID, ScheduleID: claims.ScheduleID}, nil
}
