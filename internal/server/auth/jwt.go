package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the authenticated principal carried by tokens.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

// Claims are the signed payload of both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

func (c *Claims) Identity() *Identity {
	return &Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}
}

// TokenPair is what login, register and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type tokenKind struct {
	secret []byte
	ttl    time.Duration
}

// TokenManager issues and verifies access and refresh tokens. Each kind has
// its own secret, so one kind never verifies as the other.
type TokenManager struct {
	access  tokenKind
	refresh tokenKind
	now     func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		access:  tokenKind{secret: accessSecret, ttl: accessTTL},
		refresh: tokenKind{secret: refreshSecret, ttl: refreshTTL},
		now:     time.Now,
	}
}

func (m *TokenManager) IssueAccess(id Identity) (string, error) {
	return m.issue(m.access, id)
}

func (m *TokenManager) IssueRefresh(id Identity) (string, error) {
	return m.issue(m.refresh, id)
}

// IssuePair issues a fresh access and refresh token for id.
func (m *TokenManager) IssuePair(id Identity) (TokenPair, error) {
	access, err := m.IssueAccess(id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.IssueRefresh(id)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess returns the claims of a valid access token, or false.
func (m *TokenManager) VerifyAccess(token string) (*Claims, bool) {
	return m.verify(m.access, token)
}

// VerifyRefresh returns the claims of a valid refresh token, or false.
func (m *TokenManager) VerifyRefresh(token string) (*Claims, bool) {
	return m.verify(m.refresh, token)
}

func (m *TokenManager) issue(kind tokenKind, id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("identity without user id")
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(kind.ttl)),
		},
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(kind.secret)
}

func (m *TokenManager) verify(kind tokenKind, tokenString string) (*Claims, bool) {
	if tokenString == "" {
		return nil, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return kind.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, false
	}

	if claims.UserID == "" || claims.Subject != claims.UserID || !claims.Role.Valid() {
		return nil, false
	}

	return claims, true
}
