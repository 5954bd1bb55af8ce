package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing bearer token")
)

// Token represents an authentication token response.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	TenantID string
	UserID   string
}

// Claims carried in issued tokens.
type Claims struct {
	TenantID string `json:"tid"`
	UserID   string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer. A zero expiry defaults to 24h.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Issue signs a token for the tenant and optional user.
func (i *Issuer) Issue(tenantID, userID string) (Token, error) {
	if strings.TrimSpace(tenantID) == "" {
		return Token{}, errors.New("tenant id is required")
	}

	now := i.now().UTC()
	expires := now.Add(i.expiry)
	claims := Claims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires}, nil
}

// Verify parses a token and returns its principal.
func (i *Issuer) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TenantID == "" {
		return Principal{}, fmt.Errorf("%w: missing tenant claim", ErrInvalidToken)
	}
	return Principal{TenantID: claims.TenantID, UserID: claims.UserID}, nil
}
