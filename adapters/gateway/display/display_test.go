package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

func TestBroadcast(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplayTo(&buf)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, d.Broadcast(model.LiveEvent{ID: "temperature_1", Type: model.Temperature, Value: 21.5, Timestamp: ts}))

	assert.Equal(t,
		`{"id":"temperature_1","type":"temperature","value":21.5,"timestamp":"2024-01-02T03:04:05Z"}`+"\n",
		buf.String())
}

func TestReadings(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplayTo(&buf)

	ts := time.UnixMilli(1000).UTC()
	require.NoError(t, d.Readings([]model.Reading{
		{ID: 1, SensorType: model.Gas, Value: 10, Timestamp: ts},
		{ID: 2, SensorType: model.Gas, Value: 20, Timestamp: ts.Add(time.Second)},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"gas_1000"`)
	assert.Contains(t, lines[1], `"id":"gas_2000"`)
}
