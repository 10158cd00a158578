package broker

import (
	"context"
	"errors"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
)

// BrokerConfig enables an in-process MQTT broker for single-node setups.
type BrokerConfig struct {
	Embedded bool   `yaml:"Embedded"`
	Address  string `yaml:"Address"`
}

type Broker struct {
	server *mochi.Server
	logger zerolog.Logger
}

// Start serves MQTT on conf.Address until ctx is canceled. Any client may
// connect; the broker is meant for local and test use.
func Start(ctx context.Context, wg *sync.WaitGroup, conf BrokerConfig, logger zerolog.Logger) (*Broker, error) {
	if conf.Address == "" {
		conf.Address = ":1883"
	}

	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, errors.Join(err, errors.New("failed to add broker auth hook"))
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "sensorhub-tcp",
		Address: conf.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, errors.Join(err, errors.New("failed to add broker listener"))
	}
	if err := server.Serve(); err != nil {
		return nil, errors.Join(err, errors.New("failed to start embedded broker"))
	}

	b := &Broker{
		server: server,
		logger: logger.With().Str("component", "broker").Logger(),
	}
	b.logger.Info().Str("address", conf.Address).Msg("embedded mqtt broker listening")

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		b.Close()
	}()
	return b, nil
}

func (b *Broker) Close() {
	if err := b.server.Close(); err != nil {
		b.logger.Error().Err(err).Msg("failed to close embedded broker")
		return
	}
	b.logger.Info().Msg("embedded mqtt broker stopped")
}
