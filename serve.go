package main

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Go-routine-4595/sensorhub/adapters/broker"
	"github.com/Go-routine-4595/sensorhub/adapters/controller"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/event-hub"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/mqtt"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/rabbitmq"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/websocket"
	"github.com/Go-routine-4595/sensorhub/adapters/logger"
	"github.com/Go-routine-4595/sensorhub/adapters/metrics"
	"github.com/Go-routine-4595/sensorhub/adapters/store/memory"
	"github.com/Go-routine-4595/sensorhub/adapters/store/postgres"
	"github.com/Go-routine-4595/sensorhub/adapters/store/sqlite"
	"github.com/Go-routine-4595/sensorhub/auth"
	"github.com/Go-routine-4595/sensorhub/config"
	"github.com/Go-routine-4595/sensorhub/ingestion"
	"github.com/Go-routine-4595/sensorhub/model"
	"github.com/Go-routine-4595/sensorhub/service"
	"github.com/Go-routine-4595/sensorhub/simulator"
)

func newServeCmd() *cobra.Command {
	var (
		embedded bool
		simulate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Ingest sensor readings and serve the API and live feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := loadConfig()
			if cmd.Flags().Changed("embedded-broker") {
				conf.BrokerConfig.Embedded = embedded
			}
			return serve(conf, simulate)
		},
	}
	cmd.Flags().BoolVar(&embedded, "embedded-broker", false, "run an in-process MQTT broker")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "publish simulated readings from this process")
	return cmd
}

func serve(conf *config.Config, simulate bool) error {
	var (
		err     error
		log     zerolog.Logger
		ctx     context.Context
		cancel  context.CancelFunc
		wg      *sync.WaitGroup
		reg     *prometheus.Registry
		m       *metrics.Metrics
		store   model.ReadingStore
		closeDB func() error
		channel *mqtt.Mqtt
		hub     *websocket.Hub
		sink    *gateway.Fanout
		sub     *ingestion.Subscriber
		tokens  *auth.TokenService
		creds   *auth.Credentials
		ctrl    *controller.Controller
	)

	log = logger.New(conf.LogLevel)
	if err = conf.AuthConfig.Validate(); err != nil {
		return err
	}

	wg = &sync.WaitGroup{}
	ctx, cancel = signalContext()
	defer cancel()

	reg = prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m = metrics.New(reg)

	store, closeDB, err = openStore(ctx, conf.StoreConfig, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDB(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	if conf.BrokerConfig.Embedded {
		if _, err = broker.Start(ctx, wg, conf.BrokerConfig, log); err != nil {
			return err
		}
	}

	// an unreachable broker is not fatal: paho keeps retrying and the
	// subscription below is restored once it connects
	channel, err = mqtt.NewMqtt(ctx, wg, conf.MqttConf, log)
	if err != nil {
		log.Warn().Err(err).Msg("starting without a broker connection")
	}

	hub = websocket.NewHub(m, log)
	sink = gateway.NewFanout(hub)
	addRelays(ctx, wg, conf, sink, log)

	sub = ingestion.NewSubscriber(channel, store, sink, m, log)
	if err = sub.Start(); err != nil {
		log.Warn().Err(err).Msg("ingestion degraded until the broker is reachable")
	}

	opts := []auth.Option{}
	if conf.AuthConfig.Revocation {
		opts = append(opts, auth.WithDenylist(auth.NewDenylist()))
	}
	tokens, err = auth.NewTokenService([]byte(conf.AuthConfig.Secret), conf.AuthConfig.TTL, opts...)
	if err != nil {
		return err
	}
	creds, err = auth.NewCredentials(conf.AuthConfig.Users)
	if err != nil {
		return err
	}

	ctrl = controller.NewController(conf.ControllerConfig, service.NewService(store), tokens, creds, hub, reg, log)
	if err = ctrl.Start(ctx, wg); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	if simulate {
		simulator.NewSimulator(conf.SimulatorConfig, channel, log).Start(ctx, wg)
	}

	log.Info().Str("addr", ctrl.Addr()).Str("store", conf.StoreConfig.Type).Msg("sensorhub running")
	<-ctx.Done()
	log.Info().Msg("Received interrupt signal, shutting down...")

	hub.Close()
	wg.Wait()
	sub.Wait()
	return nil
}

func openStore(ctx context.Context, conf config.StoreConfig, log zerolog.Logger) (model.ReadingStore, func() error, error) {
	noop := func() error { return nil }

	switch conf.Type {
	case "sqlite":
		s, err := sqlite.NewStore(conf.Path)
		if err != nil {
			return nil, nil, errors.Join(err, errors.New("open sqlite store"))
		}
		log.Info().Str("path", conf.Path).Msg("using sqlite store")
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.Open(ctx, conf.ConnString, conf.Table)
		if err != nil {
			return nil, nil, errors.Join(err, errors.New("open postgres store"))
		}
		log.Info().Str("table", conf.Table).Msg("using postgres store")
		return s, s.Close, nil
	default:
		log.Warn().Msg("using in-memory store, readings are lost on restart")
		return memory.NewStore(), noop, nil
	}
}

// addRelays forwards live events to the configured remote sinks. A relay that
// cannot start is logged and left out.
func addRelays(ctx context.Context, wg *sync.WaitGroup, conf *config.Config, sink *gateway.Fanout, log zerolog.Logger) {
	if conf.RabbitMQConfig.ConnectionString != "" {
		rabbit := rabbitmq.NewRabbitMQ(conf.RabbitMQConfig, log)
		if err := rabbit.Start(ctx, wg); err != nil {
			log.Error().Err(err).Msg("rabbitmq relay disabled")
		} else {
			sink.Add(gateway.NewAsync(ctx, wg, "rabbitmq", rabbit, 0, log))
		}
	}

	if conf.EventHubConfig.Connection != "" {
		eh, err := event_hub.NewEventHub(ctx, wg, conf.EventHubConfig, log)
		if err != nil {
			log.Error().Err(err).Msg("event hub relay disabled")
		} else {
			sink.Add(gateway.NewAsync(ctx, wg, "event-hub", eh, 0, log))
		}
	}
}
