package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, ""), mock
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMock(t)

	// float8 keeps readings exact as float64
	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS sensors_data \(.*value DOUBLE PRECISION NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sensors_data (sensor_type, value, timestamp) VALUES ($1, $2, $3) RETURNING id")).
		WithArgs("gas", 12.5, ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	r := model.Reading{SensorType: model.Gas, Value: 12.5, Timestamp: ts}
	require.NoError(t, s.Insert(context.Background(), &r))
	assert.Equal(t, int64(7), r.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Failure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO sensors_data").WillReturnError(errors.New("connection refused"))

	err := s.Insert(context.Background(), &model.Reading{SensorType: model.Gas, Value: 1, Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert reading")
}

func TestQueryLatest(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, sensor_type, value, timestamp FROM sensors_data WHERE sensor_type = $1 ORDER BY timestamp DESC, id DESC LIMIT $2")).
		WithArgs("temperature", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sensor_type", "value", "timestamp"}).
			AddRow(2, "temperature", 32.0, ts).
			AddRow(1, "temperature", 31.0, ts.Add(-time.Second)))

	got, err := s.QueryLatest(context.Background(), model.Temperature, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 32.0, got[0].Value)
	assert.Equal(t, model.Temperature, got[1].SensorType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLatestAll(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		since *time.Time
		query string
		args  int
	}{
		{name: "no filter", limit: 0, query: "SELECT id, sensor_type, value, timestamp FROM sensors_data ORDER BY timestamp DESC, id DESC"},
		{name: "limit", limit: 50, query: "SELECT id, sensor_type, value, timestamp FROM sensors_data ORDER BY timestamp DESC, id DESC LIMIT $1", args: 1},
		{name: "since and limit", limit: 50, since: ptr(time.Now()), query: "SELECT id, sensor_type, value, timestamp FROM sensors_data WHERE timestamp > $1 ORDER BY timestamp DESC, id DESC LIMIT $2", args: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)

			exp := mock.ExpectQuery("^" + regexp.QuoteMeta(tt.query) + "$")
			switch tt.args {
			case 1:
				exp.WithArgs(tt.limit)
			case 2:
				exp.WithArgs(*tt.since, tt.limit)
			}
			exp.WillReturnRows(sqlmock.NewRows([]string{"id", "sensor_type", "value", "timestamp"}))

			got, err := s.QueryLatestAll(context.Background(), tt.limit, tt.since)
			require.NoError(t, err)
			assert.Empty(t, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func ptr[T any](v T) *T { return &v }
