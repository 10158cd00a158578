// Package ingestion turns raw channel messages into stored and broadcast readings.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/adapters/metrics"
	"github.com/Go-routine-4595/sensorhub/model"
)

const defaultWriteTimeout = 5 * time.Second

// Subscriber consumes the sensor topics. Store writes and broadcasts are
// independent effects: a failed or slow write never holds back the live feed.
type Subscriber struct {
	channel      model.MessageChannel
	store        model.ReadingStore
	sink         model.Broadcaster
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	writeTimeout time.Duration
	now          func() time.Time

	pending sync.WaitGroup
}

func NewSubscriber(
	channel model.MessageChannel,
	store model.ReadingStore,
	sink model.Broadcaster,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Subscriber {
	return &Subscriber{
		channel:      channel,
		store:        store,
		sink:         sink,
		metrics:      m,
		logger:       logger.With().Str("component", "ingestion").Logger(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
}

// Start subscribes to every sensor topic. A failure is logged and returned
// but leaves the subscriber usable; callers keep running degraded.
func (s *Subscriber) Start() error {
	topics := model.Topics()

	err := s.channel.Subscribe(topics, func(topic string, payload []byte) {
		_ = s.Handle(topic, payload)
	})
	if err != nil {
		s.logger.Error().Err(err).Strs("topics", topics).Msg("failed to subscribe to sensor topics")
		return errors.Join(model.ErrSubscription, err)
	}

	s.logger.Info().Strs("topics", topics).Msg("subscribed to sensor topics")
	return nil
}

// Handle processes one message. Malformed messages are dropped and reported
// through the returned error; nothing is stored or broadcast for them.
func (s *Subscriber) Handle(topic string, payload []byte) error {
	s.metrics.MessageReceived()

	r, err := s.parse(topic, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("payload", string(payload)).Msg("dropping message")
		return err
	}

	s.persist(r)
	s.broadcast(r)
	return nil
}

// Wait blocks until in-flight store writes have finished.
func (s *Subscriber) Wait() {
	s.pending.Wait()
}

func (s *Subscriber) parse(topic string, payload []byte) (model.Reading, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		s.metrics.MessageDropped("topic")
		return model.Reading{}, fmt.Errorf("%w: topic %q has no sensor segment", model.ErrMalformedMessage, topic)
	}

	sensor, err := model.ParseSensorType(parts[1])
	if err != nil {
		s.metrics.MessageDropped("sensor_type")
		return model.Reading{}, fmt.Errorf("%w: %w", model.ErrMalformedMessage, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		s.metrics.MessageDropped("payload")
		return model.Reading{}, fmt.Errorf("%w: payload is not a finite number", model.ErrMalformedMessage)
	}

	return model.Reading{
		SensorType: sensor,
		Value:      value,
		Timestamp:  s.now(),
	}, nil
}

func (s *Subscriber) persist(r model.Reading) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()

		if err := s.store.Insert(ctx, &r); err != nil {
			s.metrics.StoreFailed()
			s.logger.Error().Err(errors.Join(model.ErrStoreWrite, err)).
				Str("type", string(r.SensorType)).
				Float64("value", r.Value).
				Msg("failed to save reading")
			return
		}

		s.metrics.ReadingStored()
		s.logger.Debug().
			Str("type", string(r.SensorType)).
			Float64("value", r.Value).
			Time("timestamp", r.Timestamp).
			Msg("reading saved")
	}()
}

func (s *Subscriber) broadcast(r model.Reading) {
	ev := model.NewLiveEvent(r)
	if err := s.sink.Broadcast(ev); err != nil {
		s.logger.Error().Err(err).Str("id", ev.ID).Msg("failed to broadcast reading")
		return
	}
	s.metrics.EventBroadcast()
}
