package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

func TestQueryLatest_NewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now()

	for i, v := range []float64{1, 2, 3} {
		r := model.Reading{SensorType: model.Gas, Value: v, Timestamp: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.Insert(ctx, &r))
		assert.Equal(t, int64(i+1), r.ID)
	}
	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Light, Value: 9, Timestamp: base}))

	got, err := s.QueryLatest(ctx, model.Gas, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].Value)
	assert.Equal(t, 2.0, got[1].Value)
}

func TestQueryLatest_DuplicateTimestamps(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Gas, Value: 1, Timestamp: ts}))
	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Gas, Value: 1, Timestamp: ts}))

	got, err := s.QueryLatest(ctx, model.Gas, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueryLatestAll_Since(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Gas, Value: 1, Timestamp: base}))
	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Light, Value: 2, Timestamp: base.Add(time.Second)}))
	require.NoError(t, s.Insert(ctx, &model.Reading{SensorType: model.Temperature, Value: 3, Timestamp: base.Add(2 * time.Second)}))

	all, err := s.QueryLatestAll(ctx, 0, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// since is exclusive
	got, err := s.QueryLatestAll(ctx, 0, &base)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Temperature, got[0].SensorType)
	assert.Equal(t, model.Light, got[1].SensorType)

	limited, err := s.QueryLatestAll(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
