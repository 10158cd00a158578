package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		window int
		want   float64
		wantOK bool
	}{
		{name: "empty history", values: nil, window: 5},
		{name: "window larger than history", values: []float64{10, 20, 30}, window: 5, want: 20, wantOK: true},
		{name: "uses most recent values", values: []float64{100, 1, 2, 3}, window: 3, want: 2, wantOK: true},
		{name: "single value", values: []float64{7}, window: 5, want: 7, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MovingAverage(tt.values, tt.window)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestForecast_Linear(t *testing.T) {
	res := Forecast([]float64{1, 3, 5, 7, 9}, DefaultForecastWindow)

	require.NotNil(t, res.PredictedValue)
	assert.InDelta(t, 11, *res.PredictedValue, 1e-9)
	assert.Equal(t, model.TrendIncreasing, res.Trend)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestForecast_Decreasing(t *testing.T) {
	res := Forecast([]float64{10, 8, 6, 4}, DefaultForecastWindow)

	require.NotNil(t, res.PredictedValue)
	assert.InDelta(t, 2, *res.PredictedValue, 1e-9)
	assert.Equal(t, model.TrendDecreasing, res.Trend)
}

func TestForecast_SmallSlopeIsStable(t *testing.T) {
	res := Forecast([]float64{20, 20.4, 20.8}, DefaultForecastWindow)

	require.NotNil(t, res.PredictedValue)
	assert.Equal(t, model.TrendStable, res.Trend)
}

func TestForecast_Degenerate(t *testing.T) {
	for _, values := range [][]float64{nil, {1}, {1, 2}} {
		res := Forecast(values, DefaultForecastWindow)
		assert.Nil(t, res.PredictedValue)
		assert.Equal(t, model.TrendStable, res.Trend)
		assert.Zero(t, res.Confidence)
	}
}

func TestForecast_ConstantSeries(t *testing.T) {
	res := Forecast([]float64{5, 5, 5, 5}, DefaultForecastWindow)

	require.NotNil(t, res.PredictedValue)
	assert.InDelta(t, 5, *res.PredictedValue, 1e-9)
	assert.Equal(t, model.TrendStable, res.Trend)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestForecast_ConfidenceInRange(t *testing.T) {
	res := Forecast([]float64{3, 9, 1, 12, 2, 8}, DefaultForecastWindow)

	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestForecast_WindowKeepsMostRecent(t *testing.T) {
	// only 2,4,6 are inside a window of 3
	res := Forecast([]float64{100, -50, 2, 4, 6}, 3)

	require.NotNil(t, res.PredictedValue)
	assert.InDelta(t, 8, *res.PredictedValue, 1e-9)
}

func TestCheckConsecutiveHigh(t *testing.T) {
	tests := []struct {
		name      string
		sensor    model.SensorType
		values    []float64
		wantAlert bool
		wantLimit float64
		wantVals  []float64
	}{
		{name: "both above", sensor: model.Temperature, values: []float64{31, 32}, wantAlert: true, wantLimit: 30, wantVals: []float64{31, 32}},
		{name: "one below", sensor: model.Temperature, values: []float64{29, 32}, wantLimit: 30, wantVals: []float64{29, 32}},
		{name: "equal is not above", sensor: model.Gas, values: []float64{50, 51}, wantLimit: 50, wantVals: []float64{50, 51}},
		{name: "light", sensor: model.Light, values: []float64{900, 801}, wantAlert: true, wantLimit: 800, wantVals: []float64{900, 801}},
		{name: "uses last two", sensor: model.Gas, values: []float64{10, 60, 70}, wantAlert: true, wantLimit: 50, wantVals: []float64{60, 70}},
		{name: "too few", sensor: model.Temperature, values: []float64{99}, wantVals: []float64{}},
		{name: "none", sensor: model.Temperature, values: nil, wantVals: []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckConsecutiveHigh(tt.sensor, tt.values)
			assert.Equal(t, tt.wantAlert, res.HasAlert)
			assert.Equal(t, tt.wantLimit, res.Limit)
			assert.Equal(t, tt.wantVals, res.Values)
		})
	}
}

func TestCheckConsecutiveHigh_UnknownTypeNeverAlerts(t *testing.T) {
	res := CheckConsecutiveHigh(model.SensorType("humidity"), []float64{1e300, 1e300})

	assert.False(t, res.HasAlert)
	assert.True(t, math.IsInf(res.Limit, 1))
}
