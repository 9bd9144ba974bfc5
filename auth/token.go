package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/foxvalleyai/website/storage"
)

// DefaultTTL is the session lifetime used when Issue is given a
// non-positive ttl. Sessions are long-lived "remember me" sessions;
// revocation goes through the account's session version instead.
const DefaultTTL = 365 * 24 * time.Hour

// Claims is the identity carried inside a session token.
type Claims struct {
	UserID         int64
	OpenID         string
	Username       string
	Role           storage.Role
	SessionVersion int64
	ExpiresAt      time.Time
}

// ClaimsFor builds the claims for acct.
func ClaimsFor(acct *storage.Account) Claims {
	return Claims{
		UserID:         acct.ID,
		OpenID:         acct.OpenID,
		Username:       acct.Username,
		Role:           acct.Role,
		SessionVersion: acct.SessionVersion,
	}
}

// sessionClaims is the wire shape. Pointers distinguish a missing claim
// from its zero value.
type sessionClaims struct {
	UserID         *int64  `json:"userId"`
	OpenID         *string `json:"openId"`
	Username       *string `json:"username"`
	Role           *string `json:"role"`
	SessionVersion int64   `json:"sv,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
	secret *memguard.Enclave
	now    func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock replaces time.Now; tests use it to move past expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec returns a codec signing with secret. The secret is copied
// into an encrypted enclave; the caller may wipe its own copy afterwards.
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	buf := make([]byte, len(secret))
	copy(buf, secret)

	c := &TokenCodec{
		// NewEnclave wipes buf.
		secret: memguard.NewEnclave(buf),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims into a token expiring ttl from now.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	role := string(claims.Role)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID:         &claims.UserID,
		OpenID:         &claims.OpenID,
		Username:       &claims.Username,
		Role:           &role,
		SessionVersion: claims.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	key, err := c.secret.Open()
	if err != nil {
		return "", fmt.Errorf("open signing secret: %w", err)
	}
	defer key.Destroy()

	signed, err := token.SignedString(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Every failure wraps ErrInvalidToken.
func (c *TokenCodec) Verify(raw string) (Claims, error) {
	var sc sessionClaims
	_, err := jwt.ParseWithClaims(raw, &sc, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if sc.UserID == nil || sc.OpenID == nil || sc.Username == nil || sc.Role == nil {
		return Claims{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	if *sc.OpenID == "" {
		return Claims{}, fmt.Errorf("%w: empty openId", ErrInvalidToken)
	}

	return Claims{
		UserID:         *sc.UserID,
		OpenID:         *sc.OpenID,
		Username:       *sc.Username,
		Role:           storage.Role(*sc.Role),
		SessionVersion: sc.SessionVersion,
		ExpiresAt:      sc.ExpiresAt.Time,
	}, nil
}

func (c *TokenCodec) keyFunc(*jwt.Token) (any, error) {
	key, err := c.secret.Open()
	if err != nil {
		return nil, err
	}
	defer key.Destroy()
	out := make([]byte, key.Size())
	copy(out, key.Bytes())
	return out, nil
}
