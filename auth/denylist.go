package auth

import (
	"sync"
	"time"
)

// Denylist holds revoked token IDs until the tokens would have expired anyway.
type Denylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewDenylist() *Denylist {
	return &Denylist{entries: make(map[string]time.Time)}
}

func (d *Denylist) Add(tokenID string, expiresAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[tokenID] = expiresAt
}

// Contains reports whether tokenID is revoked at now, pruning stale entries.
func (d *Denylist) Contains(tokenID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, id)
		}
	}
	_, ok := d.entries[tokenID]
	return ok
}

func (d *Denylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
