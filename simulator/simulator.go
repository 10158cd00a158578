// Package simulator publishes random readings for the three sensors, one
// goroutine per sensor, so the pipeline can run without hardware.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/model"
)

type SensorConfig struct {
	Min      float64       `yaml:"Min"`
	Max      float64       `yaml:"Max"`
	Interval time.Duration `yaml:"Interval"`
}

type SimulatorConfig struct {
	Temperature SensorConfig `yaml:"Temperature"`
	Gas         SensorConfig `yaml:"Gas"`
	Light       SensorConfig `yaml:"Light"`
}

var defaults = map[model.SensorType]SensorConfig{
	model.Temperature: {Min: 20, Max: 35, Interval: 10 * time.Second},
	model.Gas:         {Min: 0, Max: 100, Interval: 15 * time.Second},
	model.Light:       {Min: 0, Max: 1000, Interval: 12 * time.Second},
}

// ApplyDefaults fills every sensor left unset. A sensor with only an interval
// keeps its default range.
func (c *SimulatorConfig) ApplyDefaults() {
	for t, s := range c.sensors() {
		d := defaults[t]
		if s.Interval <= 0 {
			s.Interval = d.Interval
		}
		if s.Min == 0 && s.Max == 0 {
			s.Min, s.Max = d.Min, d.Max
		}
	}
}

func (c *SimulatorConfig) Validate() error {
	for t, s := range c.sensors() {
		if s.Max < s.Min {
			return fmt.Errorf("simulator %s: max %v below min %v", t, s.Max, s.Min)
		}
		if s.Interval <= 0 {
			return fmt.Errorf("simulator %s: interval must be positive", t)
		}
	}
	return nil
}

func (c *SimulatorConfig) sensors() map[model.SensorType]*SensorConfig {
	return map[model.SensorType]*SensorConfig{
		model.Temperature: &c.Temperature,
		model.Gas:         &c.Gas,
		model.Light:       &c.Light,
	}
}

type Simulator struct {
	conf    SimulatorConfig
	channel model.MessageChannel
	logger  zerolog.Logger
	rand    func() float64
}

func NewSimulator(conf SimulatorConfig, channel model.MessageChannel, logger zerolog.Logger) *Simulator {
	conf.ApplyDefaults()
	return &Simulator{
		conf:    conf,
		channel: channel,
		logger:  logger.With().Str("component", "simulator").Logger(),
		rand:    rand.Float64,
	}
}

// Start runs one publisher per sensor until ctx is canceled.
func (s *Simulator) Start(ctx context.Context, wg *sync.WaitGroup) {
	for t, sc := range s.conf.sensors() {
		wg.Add(1)
		go func(t model.SensorType, sc SensorConfig) {
			defer wg.Done()
			ticker := time.NewTicker(sc.Interval)
			defer ticker.Stop()

			s.logger.Info().Str("sensor", string(t)).Dur("interval", sc.Interval).Msg("sensor started")
			for {
				select {
				case <-ctx.Done():
					s.logger.Info().Str("sensor", string(t)).Msg("context received signal, shutting down...")
					return
				case <-ticker.C:
					if _, err := s.Emit(t); err != nil {
						s.logger.Error().Err(err).Str("sensor", string(t)).Msg("failed to publish reading")
					}
				}
			}
		}(t, *sc)
	}
}

// Emit publishes one random value for t and returns it as sent.
func (s *Simulator) Emit(t model.SensorType) (string, error) {
	sc, ok := s.conf.sensors()[t]
	if !ok {
		return "", errors.Join(model.ErrUnknownSensorType, errors.New("cannot simulate "+string(t)))
	}

	payload := Payload(sc.Min + s.rand()*(sc.Max-sc.Min))
	if err := s.channel.Publish(t.Topic(), []byte(payload)); err != nil {
		return payload, err
	}
	s.logger.Debug().Str("topic", t.Topic()).Str("value", payload).Msg("reading sent")
	return payload, nil
}

// Payload renders a value the way sensors put it on the wire.
func Payload(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
