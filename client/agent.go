// Package client is the consumer side of the API: it holds one session,
// refreshes it before expiry and polls for new readings when no live feed
// is available.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/model"
)

type AgentConfig struct {
	BaseURL        string        `yaml:"BaseURL"`
	Email          string        `yaml:"Email"`
	Password       string        `yaml:"Password"`
	PollInterval   time.Duration `yaml:"PollInterval"`
	PollLimit      int           `yaml:"PollLimit"`
	RefreshLead    time.Duration `yaml:"RefreshLead"`
	Backfill       time.Duration `yaml:"Backfill"`
	Overlap        time.Duration `yaml:"Overlap"`
	RequestTimeout time.Duration `yaml:"RequestTimeout"`
	MaxFailures    int           `yaml:"MaxFailures"`
}

func (c *AgentConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3001/api"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.PollLimit <= 0 {
		c.PollLimit = 50
	}
	if c.RefreshLead <= 0 {
		c.RefreshLead = time.Minute
	}
	if c.Backfill <= 0 {
		c.Backfill = 5 * time.Minute
	}
	if c.Overlap <= 0 {
		c.Overlap = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
}

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired, login required")
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status  int
	Message string
	Expired bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

type Session struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	User      struct {
		Email string `json:"email"`
	} `json:"user"`
}

// Agent keeps at most one token and one polling loop.
type Agent struct {
	conf   AgentConfig
	base   string
	http   *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     string
	user      string
	expiresAt time.Time
	// gen changes with every stored or discarded token so stale timers do nothing
	gen          uint64
	halted       bool
	refreshTimer *time.Timer
	pollCancel   context.CancelFunc
	cursor       time.Time
	// ids delivered inside the overlap window, keyed to their timestamp
	seen map[int64]time.Time
}

func NewAgent(conf AgentConfig, logger zerolog.Logger) *Agent {
	conf.ApplyDefaults()
	return &Agent{
		conf:   conf,
		base:   strings.TrimRight(conf.BaseURL, "/"),
		http:   &http.Client{Timeout: conf.RequestTimeout},
		logger: logger.With().Str("component", "agent").Logger(),
		now:    time.Now,
		seen:   make(map[int64]time.Time),
	}
}

// Login trades credentials for a session and schedules its refresh.
func (a *Agent) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	a.mu.Lock()
	a.halted = false
	a.mu.Unlock()

	body := map[string]string{"email": email, "password": password}
	if err := a.call(ctx, http.MethodPost, "/auth/login", "", body, &s); err != nil {
		return Session{}, err
	}
	a.store(s)
	a.logger.Info().Str("user", s.User.Email).Int("expiresIn", s.ExpiresIn).Msg("logged in")
	return s, nil
}

// Refresh swaps the current token for a new one. A failed refresh ends the
// session.
func (a *Agent) Refresh(ctx context.Context) error {
	token := a.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	var s Session
	if err := a.call(ctx, http.MethodPost, "/auth/refresh", token, nil, &s); err != nil {
		a.logger.Warn().Err(err).Msg("token refresh failed, logging out")
		a.discard()
		return errors.Join(ErrSessionExpired, err)
	}
	a.store(s)
	a.logger.Info().Str("user", s.User.Email).Msg("token refreshed")
	return nil
}

// Logout tells the server to drop the token and forgets it locally. The local
// session ends even when the server cannot be reached.
func (a *Agent) Logout(ctx context.Context) error {
	token := a.Token()
	a.discard()
	if token == "" {
		return nil
	}
	if err := a.call(ctx, http.MethodPost, "/auth/logout", token, nil, nil); err != nil {
		a.logger.Warn().Err(err).Msg("server logout failed")
		return err
	}
	a.logger.Info().Msg("logged out")
	return nil
}

// Verify returns the user the current token belongs to.
func (a *Agent) Verify(ctx context.Context) (string, error) {
	var out struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := a.authed(ctx, http.MethodGet, "/auth/verify", &out); err != nil {
		return "", err
	}
	return out.User.Email, nil
}

func (a *Agent) Latest(ctx context.Context, t model.SensorType, limit int) ([]model.Reading, error) {
	var out []model.Reading
	path := fmt.Sprintf("/sensors/%s/latest?limit=%d", url.PathEscape(string(t)), limit)
	err := a.call(ctx, http.MethodGet, path, a.Token(), nil, &out)
	return out, err
}

// LatestAll fetches readings of every sensor strictly after since, if given.
func (a *Agent) LatestAll(ctx context.Context, limit int, since *time.Time) ([]model.Reading, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if since != nil {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	var out []model.Reading
	err := a.call(ctx, http.MethodGet, "/sensors/latest?"+q.Encode(), a.Token(), nil, &out)
	return out, err
}

func (a *Agent) Predict(ctx context.Context, t model.SensorType) (*float64, error) {
	var out struct {
		PredictedValue *float64 `json:"predictedValue"`
	}
	err := a.authed(ctx, http.MethodGet, "/sensors/"+url.PathEscape(string(t))+"/predict", &out)
	return out.PredictedValue, err
}

func (a *Agent) Analysis(ctx context.Context, t model.SensorType) (model.AnalysisResult, error) {
	var out model.AnalysisResult
	err := a.authed(ctx, http.MethodGet, "/sensors/"+url.PathEscape(string(t))+"/analysis", &out)
	return out, err
}

func (a *Agent) Alerts(ctx context.Context, t model.SensorType) (model.AlertResult, error) {
	var out model.AlertResult
	err := a.authed(ctx, http.MethodGet, "/sensors/"+url.PathEscape(string(t))+"/alerts", &out)
	return out, err
}

func (a *Agent) Authenticated() bool {
	return a.Token() != ""
}

func (a *Agent) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// User is the email of the current session and when its token expires.
func (a *Agent) User() (string, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.expiresAt
}

// Stop ends polling and proactive refresh until the next Login. The session
// is kept. Calling it more than once is harmless.
func (a *Agent) Stop() {
	a.StopPolling()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.halted = true
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
	a.gen++
}

// authed performs a guarded call. An expired token gets exactly one refresh
// and retry; failing that the session is discarded.
func (a *Agent) authed(ctx context.Context, method, path string, out any) error {
	token := a.Token()
	if token == "" {
		return ErrNotAuthenticated
	}

	err := a.call(ctx, method, path, token, nil, out)
	var se *StatusError
	if !errors.As(err, &se) || !se.Expired {
		return err
	}

	a.logger.Info().Str("path", path).Msg("token expired, refreshing before retry")
	if rerr := a.Refresh(ctx); rerr != nil {
		return rerr
	}

	err = a.call(ctx, method, path, a.Token(), nil, out)
	if errors.As(err, &se) && se.Expired {
		a.discard()
		return errors.Join(ErrSessionExpired, err)
	}
	return err
}

func (a *Agent) call(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return errors.Join(err, errors.New(method+" "+path+" failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error   string `json:"error"`
			Expired bool   `json:"expired"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Message: e.Error, Expired: resp.StatusCode == http.StatusUnauthorized && e.Expired}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(err, errors.New("failed to decode "+path+" response"))
	}
	return nil
}

// store keeps s as the current session and reschedules the one-shot refresh
// RefreshLead before it expires.
func (a *Agent) store(s Session) {
	lifetime := time.Duration(s.ExpiresIn) * time.Second
	delay := lifetime - a.conf.RefreshLead
	if delay < 0 {
		delay = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = s.Token
	a.user = s.User.Email
	a.expiresAt = a.now().Add(lifetime)
	a.gen++
	gen := a.gen

	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
	if a.halted {
		return
	}
	a.refreshTimer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		stale := gen != a.gen
		a.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.conf.RequestTimeout)
		defer cancel()
		_ = a.Refresh(ctx)
	})
}

func (a *Agent) discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.user = ""
	a.expiresAt = time.Time{}
	a.gen++
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
}
