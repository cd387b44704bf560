package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the identity token claims. Identities are anonymous: the
// subject is a generated UUID, the name is whatever the player typed. There
// are no accounts to look up; possession of the token is the identity.
type Claims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name,omitempty"`
}

// Identity is the verified caller extracted from a token.
type Identity struct {
	ID          uuid.UUID
	DisplayName string
}

// Manager issues and validates anonymous identity tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

// NewManager creates an identity manager. Tokens expire after expiry; clients
// re-issue on expiry and lose nothing, since participation is keyed by the
// identity UUID stored in the token they persist.
func NewManager(secret string, expiry time.Duration) *Manager {
	return &Manager{secret: []byte(secret), expiry: expiry}
}

// Issue mints a token for a brand-new anonymous identity.
func (m *Manager) Issue(displayName string) (string, Identity, error) {
	return m.IssueFor(uuid.New(), displayName)
}

// IssueFor mints a token for an existing identity, used on token refresh.
func (m *Manager) IssueFor(id uuid.UUID, displayName string) (string, Identity, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			ID:        uuid.New().String(),
		},
		DisplayName: displayName,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return token, Identity{ID: id, DisplayName: displayName}, nil
}

// Validate parses and validates a token, returning the identity it carries.
func (m *Manager) Validate(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}

	return Identity{ID: id, DisplayName: claims.DisplayName}, nil
}
