package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type identityKey struct{}

// IdentityFrom returns the identity a guard attached to ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Guard protects routes with a TokenService.
type Guard struct {
	tokens *TokenService
	logger zerolog.Logger
}

func NewGuard(tokens *TokenService, logger zerolog.Logger) *Guard {
	return &Guard{
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Hard rejects requests without a valid token: 401 when missing or expired
// (expired is flagged so clients can refresh), 403 when invalid.
func (g *Guard) Hard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.tokens.Verify(BearerToken(r))
		if err != nil {
			g.deny(w, r, err)
			return
		}

		g.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Str("user", id.Subject).Msg("access granted")
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Soft never rejects; it records the identity when a valid token is present.
func (g *Guard) Soft(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := g.tokens.Verify(token)
		if err != nil {
			g.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring unusable token on public route")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

type denial struct {
	Error   string `json:"error"`
	Expired bool   `json:"expired,omitempty"`
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusForbidden
	body := denial{Error: ErrTokenInvalid.Error()}

	switch {
	case errors.Is(err, ErrTokenMissing):
		status = http.StatusUnauthorized
		body.Error = ErrTokenMissing.Error()
	case errors.Is(err, ErrTokenExpired):
		status = http.StatusUnauthorized
		body = denial{Error: ErrTokenExpired.Error(), Expired: true}
	}

	g.logger.Warn().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Int("status", status).
		Msg("access denied")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
