package client

import (
	"context"
	"time"

	"github.com/Go-routine-4595/sensorhub/model"
)

// StartPolling fetches new readings every PollInterval, starting at once.
// A loop already running is replaced. onData gets non-empty batches only;
// onError gets every failed poll; onDisconnect fires when MaxFailures polls
// in a row have failed, and again only after a success in between. The loop
// keeps going through failures until StopPolling or Stop.
func (a *Agent) StartPolling(onData func([]model.Reading), onError func(error), onDisconnect func()) {
	a.StopPolling()

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.pollCancel = cancel
	if a.cursor.IsZero() {
		a.cursor = a.now().Add(-a.conf.Backfill)
	}
	a.mu.Unlock()

	go a.poll(ctx, onData, onError, onDisconnect)
}

func (a *Agent) StopPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pollCancel != nil {
		a.pollCancel()
		a.pollCancel = nil
	}
}

// Cursor is the timestamp of the newest reading seen by polling.
func (a *Agent) Cursor() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

func (a *Agent) poll(ctx context.Context, onData func([]model.Reading), onError func(error), onDisconnect func()) {
	ticker := time.NewTicker(a.conf.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		failures = a.pollOnce(ctx, failures, onData, onError, onDisconnect)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce asks for everything newer than the cursor minus Overlap. Store
// writes can land out of timestamp order, so a reading saved just after a poll
// may be older than the cursor; the overlap picks it up and ids already
// delivered are filtered out.
func (a *Agent) pollOnce(ctx context.Context, failures int, onData func([]model.Reading), onError func(error), onDisconnect func()) int {
	cursor := a.Cursor()
	since := cursor.Add(-a.conf.Overlap)
	readings, err := a.LatestAll(ctx, a.conf.PollLimit, &since)
	if ctx.Err() != nil {
		return failures
	}

	if err != nil {
		failures++
		a.logger.Warn().Err(err).Int("failures", failures).Msg("poll failed")
		if onError != nil {
			onError(err)
		}
		if failures == a.conf.MaxFailures {
			a.logger.Error().Msg("api unreachable, marking disconnected")
			if onDisconnect != nil {
				onDisconnect()
			}
		}
		return failures
	}

	fresh := a.advance(cursor, readings)
	if len(fresh) > 0 && onData != nil {
		onData(fresh)
	}
	return 0
}

// advance records readings as delivered, moves the cursor to the newest one
// and returns those not delivered before.
func (a *Agent) advance(cursor time.Time, readings []model.Reading) []model.Reading {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fresh []model.Reading
	newest := cursor
	for _, r := range readings {
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
		if _, ok := a.seen[r.ID]; ok {
			continue
		}
		a.seen[r.ID] = r.Timestamp
		fresh = append(fresh, r)
	}

	// the next request starts after newest-Overlap, older ids cannot come back
	floor := newest.Add(-a.conf.Overlap)
	for id, ts := range a.seen {
		if !ts.After(floor) {
			delete(a.seen, id)
		}
	}
	a.cursor = newest
	return fresh
}
