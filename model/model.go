package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Reading is one timestamped numeric observation of one sensor type.
type Reading struct {
	ID         int64      `json:"id"`
	SensorType SensorType `json:"type"`
	Value      float64    `json:"value"`
	Timestamp  time.Time  `json:"timestamp"`
}

// LiveEvent is what live viewers receive for every accepted reading.
type LiveEvent struct {
	ID        string     `json:"id"`
	Type      SensorType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewLiveEvent builds the broadcast event of r. The id is "<type>_<epochMillis>".
func NewLiveEvent(r Reading) LiveEvent {
	return LiveEvent{
		ID:        fmt.Sprintf("%s_%d", r.SensorType, r.Timestamp.UnixMilli()),
		Type:      r.SensorType,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}
}

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// AnalysisResult is the regression forecast over a reading window.
// PredictedValue is nil when the history is too short.
type AnalysisResult struct {
	PredictedValue *float64 `json:"predictedValue"`
	Trend          Trend    `json:"trend"`
	Confidence     float64  `json:"confidence"`
}

// AlertResult reports whether the two most recent values exceed Limit.
// Values are chronological.
type AlertResult struct {
	HasAlert bool      `json:"hasAlert"`
	Values   []float64 `json:"values"`
	Limit    float64   `json:"limit"`
}

// MarshalJSON encodes an unbounded limit as null, JSON has no infinity.
func (a AlertResult) MarshalJSON() ([]byte, error) {
	var limit *float64
	if !math.IsInf(a.Limit, 0) && !math.IsNaN(a.Limit) {
		limit = &a.Limit
	}
	values := a.Values
	if values == nil {
		values = []float64{}
	}
	return json.Marshal(struct {
		HasAlert bool      `json:"hasAlert"`
		Values   []float64 `json:"values"`
		Limit    *float64  `json:"limit"`
	}{
		HasAlert: a.HasAlert,
		Values:   values,
		Limit:    limit,
	})
}

// ReadingStore persists readings. Query results are newest first.
type ReadingStore interface {
	Insert(ctx context.Context, r *Reading) error
	QueryLatest(ctx context.Context, t SensorType, limit int) ([]Reading, error)
	// QueryLatestAll returns readings of every type; a non-nil since keeps
	// only readings strictly after it. limit <= 0 means no limit.
	QueryLatestAll(ctx context.Context, limit int, since *time.Time) ([]Reading, error)
}

// MessageHandler receives one raw message from the channel.
type MessageHandler func(topic string, payload []byte)

// MessageChannel is the publish/subscribe transport readings arrive on.
type MessageChannel interface {
	Subscribe(topics []string, handler MessageHandler) error
	Publish(topic string, payload []byte) error
}

// Broadcaster fans a live event out to its audience.
type Broadcaster interface {
	Broadcast(event LiveEvent) error
}
