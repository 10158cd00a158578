package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Go-routine-4595/sensorhub/analytics"
	"github.com/Go-routine-4595/sensorhub/model"
)

const DefaultLatestLimit = 50

// Service answers reading and analytics queries from the store.
type Service struct {
	store model.ReadingStore
}

func NewService(store model.ReadingStore) Service {
	return Service{
		store: store,
	}
}

// Latest returns the most recent readings of t in chronological order.
func (s Service) Latest(ctx context.Context, t model.SensorType, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	readings, err := s.store.QueryLatest(ctx, t, limit)
	if err != nil {
		return nil, errors.Join(err, errors.New("query latest readings"))
	}
	slices.Reverse(readings)
	return readings, nil
}

// LatestAll returns recent readings of every type, chronological, optionally
// only those strictly after since.
func (s Service) LatestAll(ctx context.Context, limit int, since *time.Time) ([]model.Reading, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	readings, err := s.store.QueryLatestAll(ctx, limit, since)
	if err != nil {
		return nil, errors.Join(err, errors.New("query latest readings of all sensors"))
	}
	slices.Reverse(readings)
	return readings, nil
}

// Predict is the moving average of the last values. nil means no history.
func (s Service) Predict(ctx context.Context, t model.SensorType) (*float64, error) {
	values, err := s.values(ctx, t, analytics.DefaultAverageWindow)
	if err != nil {
		return nil, err
	}
	avg, ok := analytics.MovingAverage(values, analytics.DefaultAverageWindow)
	if !ok {
		return nil, nil
	}
	return &avg, nil
}

func (s Service) Analyze(ctx context.Context, t model.SensorType) (model.AnalysisResult, error) {
	values, err := s.values(ctx, t, analytics.DefaultForecastWindow)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return analytics.Forecast(values, analytics.DefaultForecastWindow), nil
}

func (s Service) Alerts(ctx context.Context, t model.SensorType) (model.AlertResult, error) {
	values, err := s.values(ctx, t, analytics.AlertWindow)
	if err != nil {
		return model.AlertResult{}, err
	}
	return analytics.CheckConsecutiveHigh(t, values), nil
}

// values fetches the newest n values of t and returns them oldest first.
func (s Service) values(ctx context.Context, t model.SensorType, n int) ([]float64, error) {
	readings, err := s.store.QueryLatest(ctx, t, n)
	if err != nil {
		return nil, errors.Join(err, errors.New("query reading window"))
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[len(readings)-1-i] = r.Value
	}
	return values, nil
}
