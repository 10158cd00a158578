package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid credentials")

// Credentials checks passwords against bcrypt hashes keyed by email.
type Credentials struct {
	hashes map[string][]byte
	// decoy is compared for unknown users so every failed login costs the same
	decoy []byte
}

func NewCredentials(users map[string]string) (*Credentials, error) {
	c := &Credentials{hashes: make(map[string][]byte, len(users))}

	cost := bcrypt.DefaultCost
	for email, hash := range users {
		h := []byte(hash)
		hc, err := bcrypt.Cost(h)
		if err != nil {
			return nil, errors.Join(err, errors.New("invalid password hash for "+email))
		}
		if hc > cost {
			cost = hc
		}
		c.hashes[normalizeEmail(email)] = h
	}

	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), cost)
	if err != nil {
		return nil, err
	}
	c.decoy = decoy
	return c, nil
}

// Check returns nil only when password matches the stored hash of email.
func (c *Credentials) Check(email, password string) error {
	hash, ok := c.hashes[normalizeEmail(email)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(c.decoy, []byte(password))
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashPassword produces a hash suitable for the auth.users config section.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
