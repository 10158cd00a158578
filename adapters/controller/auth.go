package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Go-routine-4595/sensorhub/auth"
)

const maxLoginBody = 1 << 16

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type user struct {
	Email string `json:"email"`
}

type sessionBody struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	User      user   `json:"user"`
}

type verifyBody struct {
	Success   bool      `json:"success"`
	User      user      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
	Message   string    `json:"message"`
}

type messageBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Controller) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed login request"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "email and password are required"})
		return
	}

	if err := c.creds.Check(req.Email, req.Password); err != nil {
		c.logger.Warn().Str("email", req.Email).Str("remote", r.RemoteAddr).Msg("login failed")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.ErrBadCredentials.Error()})
		return
	}

	tok, err := c.tokens.Issue(strings.ToLower(req.Email))
	if err != nil {
		c.fail(w, r, err, "failed to issue token")
		return
	}
	c.logger.Info().Str("email", tok.Subject).Str("remote", r.RemoteAddr).Msg("login succeeded")
	writeJSON(w, http.StatusOK, session(tok))
}

func (c *Controller) refresh(w http.ResponseWriter, r *http.Request) {
	tok, err := c.tokens.Refresh(auth.BearerToken(r))
	if err != nil {
		// the guard let it through, so it expired or was revoked in between
		writeTokenError(w, err)
		return
	}
	c.logger.Info().Str("email", tok.Subject).Str("remote", r.RemoteAddr).Msg("token refreshed")
	writeJSON(w, http.StatusOK, session(tok))
}

func (c *Controller) verify(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	writeJSON(w, http.StatusOK, verifyBody{
		Success:   true,
		User:      user{Email: id.Subject},
		ExpiresAt: id.ExpiresAt,
		Message:   "token valid",
	})
}

func (c *Controller) logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.BearerToken(r); token != "" {
		if err := c.tokens.Revoke(token); err != nil {
			c.logger.Debug().Err(err).Msg("logout with unusable token")
		}
	}
	c.logger.Info().Str("remote", r.RemoteAddr).Msg("logout")
	writeJSON(w, http.StatusOK, messageBody{Success: true, Message: "logged out"})
}

func (c *Controller) validate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "token valid",
		"timestamp":     c.now().UTC().Format(time.RFC3339),
		"authenticated": true,
	})
}

func (c *Controller) authInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "protected routes need the header Authorization: Bearer <token>",
		"authEndpoint":    "POST /api/auth/login",
		"refreshEndpoint": "POST /api/auth/refresh",
		"tokenLifetime":   int(c.tokens.TTL() / time.Second),
		"protectedRoutes": []string{
			"GET /api/sensors/:type/predict",
			"GET /api/sensors/:type/analysis",
			"GET /api/sensors/:type/alerts",
		},
		"publicRoutes": []string{
			"GET /api/sensors/:type/latest",
			"GET /api/sensors/latest",
		},
	})
}

func session(tok auth.Token) sessionBody {
	return sessionBody{
		Success:   true,
		Token:     tok.Value,
		ExpiresIn: tok.ExpiresIn(),
		User:      user{Email: tok.Subject},
	}
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.ErrTokenExpired.Error(), Expired: true})
	case errors.Is(err, auth.ErrTokenMissing):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.ErrTokenMissing.Error()})
	default:
		writeJSON(w, http.StatusForbidden, errorBody{Error: auth.ErrTokenInvalid.Error()})
	}
}
