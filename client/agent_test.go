package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

// fakeAPI hands out numbered tokens and can be told to expire them.
type fakeAPI struct {
	mu         sync.Mutex
	expiresIn  int
	issued     int
	valid      map[string]bool
	refuseNext bool
	refreshes  atomic.Int32
	logouts    atomic.Int32
	srv        *httptest.Server
}

func newFakeAPI(t *testing.T, expiresIn int) *fakeAPI {
	t.Helper()
	f := &fakeAPI{expiresIn: expiresIn, valid: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			reply(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
			return
		}
		reply(w, http.StatusOK, f.session(req.Email))
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		// lenient on expiry so the reactive path can be exercised
		f.refreshes.Add(1)
		f.mu.Lock()
		_, known := f.valid[bearer(r)]
		refuse := f.refuseNext
		f.mu.Unlock()
		if refuse || !known {
			reply(w, http.StatusForbidden, map[string]any{"error": "invalid token"})
			return
		}
		reply(w, http.StatusOK, f.session("admin@example.com"))
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		reply(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if f.check(w, r) {
			reply(w, http.StatusOK, map[string]any{"user": map[string]string{"email": "admin@example.com"}})
		}
	})
	mux.HandleFunc("GET /api/sensors/{type}/predict", func(w http.ResponseWriter, r *http.Request) {
		if f.check(w, r) {
			reply(w, http.StatusOK, map[string]any{"predictedValue": 42.5})
		}
	})
	mux.HandleFunc("GET /api/sensors/{type}/alerts", func(w http.ResponseWriter, r *http.Request) {
		if f.check(w, r) {
			reply(w, http.StatusOK, map[string]any{"hasAlert": true, "values": []float64{60, 70}, "limit": 50})
		}
	})
	mux.HandleFunc("GET /api/sensors/{type}/analysis", func(w http.ResponseWriter, r *http.Request) {
		if f.check(w, r) {
			reply(w, http.StatusOK, map[string]any{"predictedValue": 11, "trend": "increasing", "confidence": 1})
		}
	})
	mux.HandleFunc("GET /api/sensors/{type}/latest", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []model.Reading{{ID: 1, SensorType: model.SensorType(r.PathValue("type")), Value: 3}})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) session(email string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	tok := fmt.Sprintf("token-%d", f.issued)
	f.valid[tok] = true
	return map[string]any{"success": true, "token": tok, "expiresIn": f.expiresIn, "user": map[string]string{"email": email}}
}

func (f *fakeAPI) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.valid {
		f.valid[k] = false
	}
}

func (f *fakeAPI) check(w http.ResponseWriter, r *http.Request) bool {
	token := bearer(r)
	if token == "" {
		reply(w, http.StatusUnauthorized, map[string]any{"error": "access token required"})
		return false
	}
	f.mu.Lock()
	valid, known := f.valid[token]
	f.mu.Unlock()
	switch {
	case !known:
		reply(w, http.StatusForbidden, map[string]any{"error": "invalid token"})
	case !valid:
		reply(w, http.StatusUnauthorized, map[string]any{"error": "token expired", "expired": true})
	}
	return known && valid
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newAgent(t *testing.T, f *fakeAPI, conf AgentConfig) *Agent {
	t.Helper()
	conf.BaseURL = f.srv.URL + "/api/"
	a := NewAgent(conf, zerolog.New(io.Discard))
	t.Cleanup(a.Stop)
	return a
}

func TestLogin(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})
	ctx := context.Background()

	_, err := a.Login(ctx, "admin@example.com", "nope")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.False(t, a.Authenticated())

	s, err := a.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, 900, s.ExpiresIn)
	assert.Equal(t, "token-1", a.Token())

	user, exp := a.User()
	assert.Equal(t, "admin@example.com", user)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	email, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", email)
}

func TestGuardedCallsNeedSession(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})

	_, err := a.Predict(context.Background(), model.Gas)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, a.Refresh(context.Background()), ErrNotAuthenticated)

	readings, err := a.Latest(context.Background(), model.Light, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, model.Light, readings[0].SensorType)
}

func TestAnalyticsCalls(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})
	ctx := context.Background()
	_, err := a.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)

	v, err := a.Predict(ctx, model.Gas)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 42.5, *v)

	an, err := a.Analysis(ctx, model.Temperature)
	require.NoError(t, err)
	assert.Equal(t, model.TrendIncreasing, an.Trend)

	al, err := a.Alerts(ctx, model.Gas)
	require.NoError(t, err)
	assert.True(t, al.HasAlert)
	assert.Equal(t, []float64{60, 70}, al.Values)
	assert.Equal(t, 50.0, al.Limit)
}

func TestExpiredTokenIsRefreshedOnce(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})
	ctx := context.Background()
	_, err := a.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)

	f.expireAll()
	v, err := a.Predict(ctx, model.Gas)
	require.NoError(t, err)
	assert.Equal(t, 42.5, *v)
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, "token-2", a.Token())
}

func TestFailedRefreshForcesLogout(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})
	ctx := context.Background()
	_, err := a.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)

	f.expireAll()
	f.mu.Lock()
	f.refuseNext = true
	f.mu.Unlock()

	_, err = a.Alerts(ctx, model.Gas)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, a.Authenticated())
	assert.Equal(t, int32(1), f.refreshes.Load())

	_, err = a.Alerts(ctx, model.Gas)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(1), f.refreshes.Load())
}

func TestProactiveRefresh(t *testing.T) {
	f := newFakeAPI(t, 1)
	a := newAgent(t, f, AgentConfig{RefreshLead: 900 * time.Millisecond})

	_, err := a.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.refreshes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.Token() != "token-1" }, time.Second, 10*time.Millisecond)

	// every refresh schedules the next one
	require.Eventually(t, func() bool { return f.refreshes.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestLeadLongerThanLifetimeRefreshesImmediately(t *testing.T) {
	f := newFakeAPI(t, 1)
	a := newAgent(t, f, AgentConfig{RefreshLead: time.Hour})

	_, err := a.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.refreshes.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestStopCancelsRefresh(t *testing.T) {
	f := newFakeAPI(t, 1)
	a := newAgent(t, f, AgentConfig{RefreshLead: 800 * time.Millisecond})

	_, err := a.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)
	a.Stop()
	a.Stop()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(0), f.refreshes.Load())
	assert.True(t, a.Authenticated())
}

func TestLogout(t *testing.T) {
	f := newFakeAPI(t, 900)
	a := newAgent(t, f, AgentConfig{})
	ctx := context.Background()

	require.NoError(t, a.Logout(ctx))
	assert.Equal(t, int32(0), f.logouts.Load())

	_, err := a.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, a.Logout(ctx))
	assert.Equal(t, int32(1), f.logouts.Load())
	assert.False(t, a.Authenticated())

	f.srv.Close()
	_, err = a.Login(ctx, "admin@example.com", "pw")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))
}
