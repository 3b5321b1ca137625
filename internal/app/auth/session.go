package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims carried by a browser session token
// issued after a user signs in, distinct from the long-lived PAT/setup
// token bearer scheme used for API calls.
type SessionClaims struct {
	UserID string   `json:"user_id"`
	OrgID  string   `json:"org_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// SessionIssuer issues and verifies HS256 session JWTs signed with a
// server-held secret (config.SessionJWTSecret).
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionIssuer(secret []byte, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: secret, ttl: ttl}
}

// Issue signs a session token for the given user/org/scopes.
func (s *SessionIssuer) Issue(userID, orgID string, scopes []string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: userID,
		OrgID:  orgID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "flowplane-controlplane",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionIssuer) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid session token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid session token")
	}
	return claims, nil
}
