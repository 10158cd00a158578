// Package analytics holds the pure computations served by the analytics
// endpoints. Every function takes values in chronological order.
package analytics

import (
	"math"

	"github.com/Go-routine-4595/sensorhub/model"
)

const (
	DefaultAverageWindow  = 5
	DefaultForecastWindow = 10
	AlertWindow           = 2

	// minForecastPoints is the shortest history a regression is fitted on.
	minForecastPoints = 3
	// trendSlope is the absolute slope separating stable from a trend.
	trendSlope = 0.5
)

var thresholds = map[model.SensorType]float64{
	model.Temperature: 30,
	model.Gas:         50,
	model.Light:       800,
}

// Threshold returns the alert limit of t. Unknown types are unbounded.
func Threshold(t model.SensorType) float64 {
	if limit, ok := thresholds[t]; ok {
		return limit
	}
	return math.Inf(1)
}

// MovingAverage averages the last window values. ok is false for an empty history.
func MovingAverage(values []float64, window int) (avg float64, ok bool) {
	values = tail(values, window)
	if len(values) == 0 {
		return 0, false
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Forecast fits a least-squares line over the last window values, indexed
// 0..n-1, and predicts the value at index n.
func Forecast(values []float64, window int) model.AnalysisResult {
	values = tail(values, window)
	n := len(values)
	if n < minForecastPoints {
		return model.AnalysisResult{Trend: model.TrendStable}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	slope := (fn*sumXY - sumX*sumY) / (fn*sumXX - sumX*sumX)
	intercept := (sumY - slope*sumX) / fn
	predicted := slope*fn + intercept

	trend := model.TrendStable
	switch {
	case slope > trendSlope:
		trend = model.TrendIncreasing
	case slope < -trendSlope:
		trend = model.TrendDecreasing
	}

	meanY := sumY / fn
	var ssTotal, ssResidual float64
	for i, y := range values {
		fitted := slope*float64(i) + intercept
		ssTotal += (y - meanY) * (y - meanY)
		ssResidual += (y - fitted) * (y - fitted)
	}

	return model.AnalysisResult{
		PredictedValue: &predicted,
		Trend:          trend,
		Confidence:     rSquared(ssTotal, ssResidual),
	}
}

// rSquared is clamped to [0,1]. A constant series is a perfect fit when its
// residuals vanish, and no fit otherwise.
func rSquared(ssTotal, ssResidual float64) float64 {
	if ssTotal == 0 {
		if ssResidual == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, 1-ssResidual/ssTotal))
}

// CheckConsecutiveHigh alerts when the last two values both strictly exceed
// the limit of t.
func CheckConsecutiveHigh(t model.SensorType, values []float64) model.AlertResult {
	if len(values) < AlertWindow {
		return model.AlertResult{Values: []float64{}}
	}

	values = append([]float64(nil), tail(values, AlertWindow)...)
	limit := Threshold(t)

	hasAlert := true
	for _, v := range values {
		if !(v > limit) {
			hasAlert = false
		}
	}

	return model.AlertResult{
		HasAlert: hasAlert,
		Values:   values,
		Limit:    limit,
	}
}

func tail(values []float64, n int) []float64 {
	if n > 0 && len(values) > n {
		return values[len(values)-n:]
	}
	return values
}
