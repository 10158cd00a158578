package websocket

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/adapters/metrics"
	"github.com/Go-routine-4595/sensorhub/model"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(metrics.New(prometheus.NewRegistry()), zerolog.New(io.Discard))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesEveryViewer(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	ev := model.NewLiveEvent(model.Reading{SensorType: model.Light, Value: 640, Timestamp: time.UnixMilli(1700000000000)})
	require.NoError(t, hub.Broadcast(ev))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, EventName, frame.Event)
		assert.Equal(t, "light_1700000000000", frame.Data.ID)
		assert.Equal(t, model.Light, frame.Data.Type)
		assert.Equal(t, 640.0, frame.Data.Value)
	}
}

func TestBroadcastWithoutViewers(t *testing.T) {
	hub, _ := startHub(t)
	assert.NoError(t, hub.Broadcast(model.LiveEvent{Type: model.Gas}))
}

func TestViewerLeaving(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, hub.Broadcast(model.LiveEvent{Type: model.Gas}))
}

func TestNoReplayForLateViewers(t *testing.T) {
	hub, url := startHub(t)
	require.NoError(t, hub.Broadcast(model.LiveEvent{ID: "early", Type: model.Gas}))

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Broadcast(model.LiveEvent{ID: "late", Type: model.Gas}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "late", frame.Data.ID)
}
