package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/Go-routine-4595/sensorhub/model"
)

type RabbitMQConfig struct {
	ConnectionString string `yaml:"ConnectionString"`
	QueueName        string `yaml:"QueueName"`
}

// publisher is the slice of *amqp.Channel the relay needs.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ relays live events to a durable queue as JSON.
type RabbitMQ struct {
	ConnectionString string
	QueueName        string
	logger           zerolog.Logger
	retry            time.Duration

	mu   sync.Mutex
	ctx  context.Context
	conn *amqp.Connection
	ch   publisher
}

func NewRabbitMQ(config RabbitMQConfig, logger zerolog.Logger) *RabbitMQ {
	if config.QueueName == "" {
		config.QueueName = "sensor-events"
	}
	return &RabbitMQ{
		ConnectionString: config.ConnectionString,
		QueueName:        config.QueueName,
		logger:           logger.With().Str("component", "rabbitmq").Logger(),
		retry:            5 * time.Second,
		ctx:              context.Background(),
	}
}

// Broadcast publishes one event. A failed publish triggers a reconnect and a
// single retry.
func (r *RabbitMQ) Broadcast(ev model.LiveEvent) error {
	var (
		msg []byte
		err error
	)

	msg, err = json.Marshal(ev)
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal event rabbitmq.Broadcast"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return errors.New("rabbitmq channel not open")
	}
	if err = r.publish(msg); err == nil {
		return nil
	}
	r.logger.Error().Err(err).Msg("Failed to publish a message")
	if !r.reconnect() {
		return errors.Join(err, errors.New("rabbitmq reconnect abandoned"))
	}
	return r.publish(msg)
}

func (r *RabbitMQ) publish(msg []byte) error {
	return r.ch.Publish(
		"",          // Exchange
		r.QueueName, // Routing key (queue name)
		false,       // Mandatory
		false,       // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        msg,
		},
	)
}

// connect establishes a new connection and channel
func (r *RabbitMQ) connect() error {
	var (
		err  error
		conn *amqp.Connection
		ch   *amqp.Channel
	)
	conn, err = amqp.Dial(r.ConnectionString)
	if err != nil {
		return err
	}

	ch, err = conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	_, err = ch.QueueDeclare(
		r.QueueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		_ = conn.Close()
		return err
	}

	r.conn = conn
	r.ch = ch
	return nil
}

// reconnect retries until it succeeds or the relay is shut down.
func (r *RabbitMQ) reconnect() bool {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	for {
		r.logger.Info().Msg("Attempting to reconnect to RabbitMQ...")
		err := r.connect()
		if err == nil {
			r.logger.Info().Msg("Successfully reconnected to RabbitMQ...")
			return true
		}
		r.logger.Error().Err(err).Msg("Reconnect failed")

		select {
		case <-r.ctx.Done():
			return false
		case <-time.After(r.retry):
		}
	}
}

// Start connects and closes the connection when ctx is canceled.
func (r *RabbitMQ) Start(ctx context.Context, wg *sync.WaitGroup) error {
	r.mu.Lock()
	r.ctx = ctx
	err := r.connect()
	r.mu.Unlock()
	if err != nil {
		return errors.Join(err, errors.New("failed to connect to RabbitMQ"))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := r.Close(); err != nil {
			r.logger.Error().Err(err).Msg("failed to close rabbitmq connection")
		}
		r.logger.Info().Msg("rabbitmq relay closed")
	}()
	return nil
}

// Close gracefully shuts down the connection and channel.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ch = nil
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

var _ model.Broadcaster = (*RabbitMQ)(nil)
