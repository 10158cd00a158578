package mqtt

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Go-routine-4595/sensorhub/adapters/broker"
	"github.com/Go-routine-4595/sensorhub/model"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func startBroker(t *testing.T) (context.Context, *sync.WaitGroup, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	addr := freeAddr(t)

	_, err := broker.Start(ctx, wg, broker.BrokerConfig{Embedded: true, Address: addr}, zerolog.New(io.Discard))
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return ctx, wg, addr
}

type received struct {
	mu   sync.Mutex
	msgs map[string]string
}

func (r *received) handle(topic string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[topic] = string(payload)
}

func (r *received) get(topic string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.msgs[topic]
	return v, ok
}

func TestSubscribeAndPublish(t *testing.T) {
	ctx, wg, addr := startBroker(t)
	conf := MqttConf{Connection: fmt.Sprintf("tcp://%s", addr)}

	sub, err := NewMqtt(ctx, wg, conf, zerolog.New(io.Discard))
	require.NoError(t, err)
	pub, err := NewMqtt(ctx, wg, conf, zerolog.New(io.Discard))
	require.NoError(t, err)
	assert.NotEqual(t, sub.ClientID, pub.ClientID)

	got := &received{msgs: map[string]string{}}
	require.NoError(t, sub.Subscribe(model.Topics(), got.handle))

	require.NoError(t, pub.Publish("sensors/gas", []byte("42.00")))
	require.NoError(t, pub.Publish("other/topic", []byte("ignored")))

	require.Eventually(t, func() bool {
		v, ok := got.get("sensors/gas")
		return ok && v == "42.00"
	}, 3*time.Second, 20*time.Millisecond)

	_, ok := got.get("other/topic")
	assert.False(t, ok)
}

func TestSubscribeBeforeBrokerIsUp(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	sub, err := NewMqtt(ctx, wg, MqttConf{Connection: "tcp://" + addr, ConnectTimeout: 200 * time.Millisecond}, zerolog.New(io.Discard))
	require.Error(t, err)

	got := &received{msgs: map[string]string{}}
	assert.Error(t, sub.Subscribe([]string{"sensors/light"}, got.handle))

	// once the broker shows up the remembered subscription is restored
	_, err = broker.Start(ctx, wg, broker.BrokerConfig{Address: addr}, zerolog.New(io.Discard))
	require.NoError(t, err)

	pub, err := NewMqtt(ctx, wg, MqttConf{Connection: "tcp://" + addr}, zerolog.New(io.Discard))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = pub.Publish("sensors/light", []byte("700"))
		v, ok := got.get("sensors/light")
		return ok && v == "700"
	}, 10*time.Second, 200*time.Millisecond)
}
