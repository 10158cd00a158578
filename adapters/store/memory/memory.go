package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Go-routine-4595/sensorhub/model"
)

// Store keeps readings in process memory. Useful for development and tests.
type Store struct {
	mu       sync.RWMutex
	readings []model.Reading
	nextID   int64
}

func NewStore() *Store {
	return &Store{nextID: 1}
}

func (s *Store) Insert(ctx context.Context, r *model.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID
	s.nextID++
	s.readings = append(s.readings, *r)
	return nil
}

func (s *Store) QueryLatest(ctx context.Context, t model.SensorType, limit int) ([]model.Reading, error) {
	return s.query(limit, func(r model.Reading) bool {
		return r.SensorType == t
	}), nil
}

func (s *Store) QueryLatestAll(ctx context.Context, limit int, since *time.Time) ([]model.Reading, error) {
	return s.query(limit, func(r model.Reading) bool {
		return since == nil || r.Timestamp.After(*since)
	}), nil
}

func (s *Store) query(limit int, keep func(model.Reading) bool) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Reading
	for _, r := range s.readings {
		if keep(r) {
			out = append(out, r)
		}
	}

	// newest first; insertion order breaks timestamp ties
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ model.ReadingStore = (*Store)(nil)
