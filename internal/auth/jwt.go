package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/massy-ia/citydesk/internal/apperr"
)

// TokenType distinguishes short-lived access credentials from refresh credentials.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Identity is the set of claims carried by both credentials of a pair.
type Identity struct {
	UserID   string
	Role     string
	Username string
	Email    string
}

type Claims struct {
	Role     string    `json:"role"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the identity embedded in the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Role: c.Role, Username: c.Username, Email: c.Email}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenIssuer signs and verifies HS256 credentials. There is no revocation list.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair creates the access/refresh pair returned at login and registration.
func (t *TokenIssuer) IssuePair(id Identity) (TokenPair, error) {
	access, err := t.sign(id, AccessToken, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(id, RefreshToken, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess creates a new access credential for an already verified identity.
func (t *TokenIssuer) IssueAccess(id Identity) (string, error) {
	return t.sign(id, AccessToken, t.accessTTL)
}

func (t *TokenIssuer) sign(id Identity, typ TokenType, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Role:     id.Role,
		Username: id.Username,
		Email:    id.Email,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", apperr.Internal("failed to sign token", err)
	}
	return signed, nil
}

// Parse verifies a credential and checks that it is of the wanted type.
// Every failure is reported as Unauthenticated.
func (t *TokenIssuer) Parse(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthenticated("token has expired")
		}
		return nil, apperr.Unauthenticated("invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperr.Unauthenticated("invalid token")
	}
	if claims.Type != want {
		return nil, apperr.Unauthenticated(fmt.Sprintf("%s token required", want))
	}
	return claims, nil
}
