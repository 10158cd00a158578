package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	pmqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"

	"github.com/Go-routine-4595/sensorhub/model"
)

// MqttConf holds the configuration for the MQTT client.
type MqttConf struct {
	Connection         string        `yaml:"Connection"`
	ClientPrefix       string        `yaml:"ClientPrefix"`
	Username           string        `yaml:"Username"`
	Password           string        `yaml:"Password"`
	QoS                byte          `yaml:"QoS"`
	InsecureSkipVerify bool          `yaml:"InsecureSkipVerify"`
	ConnectTimeout     time.Duration `yaml:"ConnectTimeout"`
}

// Mqtt owns one broker connection. It is the message channel: readings are
// subscribed to and simulators publish through it.
type Mqtt struct {
	MgtUrl   string
	ClientID uuid.UUID
	qos      byte
	timeout  time.Duration
	logger   zerolog.Logger
	opt      *pmqtt.ClientOptions
	client   pmqtt.Client

	mu   sync.Mutex
	subs map[string]model.MessageHandler
}

// NewMqtt connects to the broker and disconnects when ctx is canceled.
// A failed first connection is returned as an error, paho keeps retrying in
// the background and subscriptions are restored once it succeeds.
func NewMqtt(ctx context.Context, wg *sync.WaitGroup, conf MqttConf, logger zerolog.Logger) (*Mqtt, error) {
	var (
		err        error
		cid        uuid.UUID
		mqttClient *Mqtt
	)

	if conf.ClientPrefix == "" {
		conf.ClientPrefix = "sensorhub"
	}
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = 5 * time.Second
	}

	cid = uuid.NewV4()
	mqttClient = &Mqtt{
		MgtUrl:   conf.Connection,
		ClientID: cid,
		qos:      conf.QoS,
		timeout:  conf.ConnectTimeout,
		logger:   logger.With().Str("component", "mqtt").Logger(),
		subs:     make(map[string]model.MessageHandler),
	}
	mqttClient.opt = pmqtt.NewClientOptions().
		AddBroker(conf.Connection).
		SetClientID(conf.ClientPrefix + "-" + cid.String()).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetTLSConfig(&tls.Config{
			InsecureSkipVerify: conf.InsecureSkipVerify,
		}).
		SetConnectionLostHandler(mqttClient.ConnectLostHandler()).
		SetOnConnectHandler(mqttClient.ConnectHandler())

	mqttClient.client = pmqtt.NewClient(mqttClient.opt)
	mqttClient.setupContextListener(ctx, wg)

	err = mqttClient.Connect()
	return mqttClient, err
}

// setupContextListener ensures proper disconnection when the context is canceled.
func (m *Mqtt) setupContextListener(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		m.Disconnect()
	}()
}

func (m *Mqtt) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(m.timeout) {
		m.logger.Warn().Str("broker", m.MgtUrl).Msg("mqtt broker not reachable yet, retrying in background")
		return errors.New("timeout connecting to mqtt broker")
	}
	if token.Error() != nil {
		m.logger.Error().Err(token.Error()).Msg("Error connecting to mqtt broker")
		return errors.Join(token.Error(), errors.New("error connecting to mqtt broker"))
	}
	return nil
}

// Disconnect terminates the connection to the MQTT broker and logs the disconnection event.
func (m *Mqtt) Disconnect() {
	m.client.Disconnect(250)
	m.logger.Warn().Msg("Mqtt disconnected")
}

// Subscribe registers handler for topics. The subscription is remembered and
// replayed on every reconnect, so an error here means degraded, not lost.
func (m *Mqtt) Subscribe(topics []string, handler model.MessageHandler) error {
	m.mu.Lock()
	for _, t := range topics {
		m.subs[t] = handler
	}
	m.mu.Unlock()

	if !m.client.IsConnectionOpen() {
		return errors.New("mqtt client not connected")
	}
	return m.subscribe(topics, handler)
}

func (m *Mqtt) subscribe(topics []string, handler model.MessageHandler) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = m.qos
	}

	token := m.client.SubscribeMultiple(filters, func(_ pmqtt.Client, msg pmqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(m.timeout) {
		return errors.New("timeout subscribing to mqtt topics")
	}
	if token.Error() != nil {
		return errors.Join(token.Error(), errors.New("failed to subscribe to mqtt topics"))
	}
	return nil
}

// Publish sends payload on topic without retention.
func (m *Mqtt) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		m.logger.Error().Str("topic", topic).Msg("Timeout exceeded during publishing")
		return errors.New("timeout publishing to " + topic)
	}
	if token.Error() != nil {
		m.logger.Error().Err(token.Error()).Str("topic", topic).Msg("failed to publish")
		return errors.Join(token.Error(), errors.New("failed to publish to "+topic))
	}
	return nil
}

// ConnectHandler logs the connection and restores remembered subscriptions.
func (m *Mqtt) ConnectHandler() func(client pmqtt.Client) {
	return func(client pmqtt.Client) {
		m.logger.Info().Str("broker", m.MgtUrl).Msg("Connected to mqtt broker")

		m.mu.Lock()
		handlers := make(map[string]model.MessageHandler, len(m.subs))
		for t, h := range m.subs {
			handlers[t] = h
		}
		m.mu.Unlock()

		for t, h := range handlers {
			// paho runs this handler on its own goroutine, blocking here is fine
			if err := m.subscribe([]string{t}, h); err != nil {
				m.logger.Error().Err(err).Str("topic", t).Msg("failed to restore subscription")
			}
		}
	}
}

// ConnectLostHandler returns a function to handle lost connections to the MQTT broker.
func (m *Mqtt) ConnectLostHandler() func(client pmqtt.Client, err error) {
	return func(client pmqtt.Client, err error) {
		m.logger.Warn().Err(err).Msg("Connection Lost")
	}
}

var _ model.MessageChannel = (*Mqtt)(nil)
