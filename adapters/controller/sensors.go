package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/Go-routine-4595/sensorhub/model"
	"github.com/Go-routine-4595/sensorhub/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Expired bool   `json:"expired,omitempty"`
}

type predictBody struct {
	PredictedValue *float64 `json:"predictedValue"`
}

func (c *Controller) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "sensorhub API is running",
		"version": "1.0.0",
		"authentication": map[string]string{
			"info":             "some routes require a bearer token",
			"authInfoEndpoint": "/api/auth/info",
		},
		"endpoints": map[string]string{
			"sensors":     "/api/sensors/:type/latest",
			"all":         "/api/sensors/latest",
			"predictions": "/api/sensors/:type/predict (protected)",
			"analysis":    "/api/sensors/:type/analysis (protected)",
			"alerts":      "/api/sensors/:type/alerts (protected)",
			"live":        "/ws",
		},
	})
}

func (c *Controller) latest(w http.ResponseWriter, r *http.Request) {
	t, ok := c.sensorType(w, r)
	if !ok {
		return
	}

	readings, err := c.svc.Latest(r.Context(), t, queryLimit(r))
	if err != nil {
		c.fail(w, r, err, "failed to load readings")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(readings))
}

func (c *Controller) latestAll(w http.ResponseWriter, r *http.Request) {
	since, err := querySince(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid since parameter"})
		return
	}

	readings, err := c.svc.LatestAll(r.Context(), queryLimit(r), since)
	if err != nil {
		c.fail(w, r, err, "failed to load readings")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(readings))
}

func (c *Controller) predict(w http.ResponseWriter, r *http.Request) {
	t, ok := c.sensorType(w, r)
	if !ok {
		return
	}

	v, err := c.svc.Predict(r.Context(), t)
	if err != nil {
		c.fail(w, r, err, "failed to compute prediction")
		return
	}
	writeJSON(w, http.StatusOK, predictBody{PredictedValue: v})
}

func (c *Controller) analysis(w http.ResponseWriter, r *http.Request) {
	t, ok := c.sensorType(w, r)
	if !ok {
		return
	}

	res, err := c.svc.Analyze(r.Context(), t)
	if err != nil {
		c.fail(w, r, err, "failed to compute analysis")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *Controller) alerts(w http.ResponseWriter, r *http.Request) {
	t, ok := c.sensorType(w, r)
	if !ok {
		return
	}

	res, err := c.svc.Alerts(r.Context(), t)
	if err != nil {
		c.fail(w, r, err, "failed to check alerts")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *Controller) sensorType(w http.ResponseWriter, r *http.Request) (model.SensorType, bool) {
	t, err := model.ParseSensorType(r.PathValue("type"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return "", false
	}
	return t, true
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	c.logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: msg})
}

// queryLimit reads ?limit=N; anything not a positive integer means the default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return service.DefaultLatestLimit
	}
	return n
}

// querySince reads ?since= (or the older ?startTime=) as ISO 8601 or epoch
// milliseconds. Absent means no lower bound.
func querySince(r *http.Request) (*time.Time, error) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("since"))
	if raw == "" {
		raw = strings.TrimSpace(q.Get("startTime"))
	}
	if raw == "" {
		return nil, nil
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		return &t, nil
	}
	t, err := iso8601.ParseString(raw)
	if err != nil {
		return nil, errors.Join(err, errors.New("since is neither ISO 8601 nor epoch milliseconds"))
	}
	return &t, nil
}

func nonNil(readings []model.Reading) []model.Reading {
	if readings == nil {
		return []model.Reading{}
	}
	return readings
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
