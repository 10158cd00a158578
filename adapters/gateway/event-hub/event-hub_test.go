package event_hub

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/model"
)

func TestCreateEventForReading(t *testing.T) {
	ev := model.LiveEvent{ID: "gas_1700000000000", Type: model.Gas, Value: 63.5, Timestamp: time.UnixMilli(1700000000000)}
	buf, err := json.Marshal(ev)
	require.NoError(t, err)

	data := createEventForReading(ev, buf)
	assert.Equal(t, buf, data.Body)
	require.NotNil(t, data.ContentType)
	assert.Equal(t, "application/json", *data.ContentType)
	require.NotNil(t, data.MessageID)
	assert.Equal(t, "gas_1700000000000", *data.MessageID)
	assert.Equal(t, "gas", data.Properties["sensorType"])
}

func TestNewEventHub_BadConnectionString(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := NewEventHub(ctx, &sync.WaitGroup{}, EventHubConfig{Connection: "not a connection string"}, zerolog.New(io.Discard))
	assert.Error(t, err)
}
