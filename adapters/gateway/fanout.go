// Package gateway composes the broadcast sinks live events are delivered to.
package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/model"
)

// Fanout hands every event to each of its sinks. One sink failing does not
// keep the event from the others.
type Fanout struct {
	sinks []model.Broadcaster
}

func NewFanout(sinks ...model.Broadcaster) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Add(sink model.Broadcaster) {
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Broadcast(ev model.LiveEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Broadcast(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async decouples a slow sink (a remote relay) from the caller with a bounded
// queue. Events that do not fit are dropped and logged.
type Async struct {
	name   string
	next   model.Broadcaster
	queue  chan model.LiveEvent
	logger zerolog.Logger
}

func NewAsync(ctx context.Context, wg *sync.WaitGroup, name string, next model.Broadcaster, buffer int, logger zerolog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		name:   name,
		next:   next,
		queue:  make(chan model.LiveEvent, buffer),
		logger: logger.With().Str("component", "relay").Str("relay", name).Logger(),
	}

	wg.Add(1)
	go a.run(ctx, wg)
	return a
}

func (a *Async) Broadcast(ev model.LiveEvent) error {
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn().Str("id", ev.ID).Msg("relay queue full, event dropped")
	}
	return nil
}

func (a *Async) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("relay stopped")
			return
		case ev := <-a.queue:
			if err := a.next.Broadcast(ev); err != nil {
				a.logger.Error().Err(err).Str("id", ev.ID).Msg("relay failed to forward event")
			}
		}
	}
}

var (
	_ model.Broadcaster = (*Fanout)(nil)
	_ model.Broadcaster = (*Async)(nil)
)
