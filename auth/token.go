// Package auth issues and checks the short-lived bearer tokens that guard
// the analytics routes. Verification is a pure signature and expiry check.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTTL = 15 * time.Minute

var (
	ErrTokenMissing = errors.New("access token required")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = fmt.Errorf("%w: revoked", ErrTokenInvalid)
)

// Token is a freshly signed credential.
type Token struct {
	Value     string
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the lifetime left at issuance, in whole seconds.
func (t Token) ExpiresIn() int {
	return int(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// Identity is what a valid token proves.
type Identity struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

type TokenService struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	denylist *Denylist
	parser   *jwt.Parser
}

type Option func(*TokenService)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// WithDenylist enables revocation by token ID.
func WithDenylist(d *Denylist) Option {
	return func(s *TokenService) { s.denylist = d }
}

func NewTokenService(secret []byte, ttl time.Duration, opts ...Option) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &TokenService{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Issue signs a token for subject that expires one TTL from now.
func (s *TokenService) Issue(subject string) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("token subject must not be empty")
	}

	// NumericDate has second precision; keep the returned times consistent with the claims
	now := s.now().Truncate(time.Second)
	return s.sign(subject, now, now.Add(s.ttl))
}

func (s *TokenService) sign(subject string, issuedAt, expiresAt time.Time) (Token, error) {
	tok := Token{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	claims := jwt.RegisteredClaims{
		Subject:   tok.Subject,
		ID:        tok.ID,
		IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, errors.Join(err, errors.New("failed to sign token"))
	}
	tok.Value = signed
	return tok, nil
}

// Verify returns the identity proven by value. It fails with ErrTokenExpired
// for a genuine but expired token and ErrTokenInvalid for everything else.
func (s *TokenService) Verify(value string) (Identity, error) {
	if value == "" {
		return Identity{}, ErrTokenMissing
	}

	var claims jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Identity{}, ErrTokenExpired
	default:
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if s.denylist != nil && s.denylist.Contains(claims.ID, s.now()) {
		return Identity{}, ErrTokenRevoked
	}

	return Identity{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a currently valid token for a new one with a later expiry.
// Expired tokens cannot be refreshed.
func (s *TokenService) Refresh(value string) (Token, error) {
	id, err := s.Verify(value)
	if err != nil {
		return Token{}, err
	}

	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	// within the issuing second the truncated expiry would not move
	if !expiresAt.After(id.ExpiresAt) {
		expiresAt = id.ExpiresAt.Add(time.Second)
	}
	return s.sign(id.Subject, now, expiresAt)
}

// Revoke denies value until its natural expiry. Without a denylist it is a
// no-op and the client is expected to discard the token.
func (s *TokenService) Revoke(value string) error {
	id, err := s.Verify(value)
	if err != nil {
		return err
	}
	if s.denylist != nil {
		s.denylist.Add(id.TokenID, id.ExpiresAt)
	}
	return nil
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
